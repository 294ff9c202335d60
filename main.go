package main

import (
	"log"
	_ "time/tzdata"

	"calorie-challenge-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
