package main

import "github.com/veil-pii/veil/cmd/veil"

func main() { veil.Execute() }
