package main

import (
	"log"

	"studybot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("Erro ao executar o studybot: %v", err)
	}
}
