package main

import (
	"clarity/cmd/handlers"
	"clarity/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
