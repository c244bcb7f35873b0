// Public domain.

package main

import "github.com/soniakeys/joker/internal/jprog"

func main() {
	jprog.Main()
}
