package main

import (
	"fmt"
	"os"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "ColumnBridge"
)

func main() {
	fmt.Printf("%s v%s\n", Name, Version)
	fmt.Println("Arrow C Data Interface exporter for Go columns")
	fmt.Println()
	for _, e := range layout.FormatTable() {
		fmt.Printf("  %-16s %s\n", e.Type, e.Format)
	}
	os.Exit(0)
}
