package main

import (
	"log"

	"github.com/mergeeats/core/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
