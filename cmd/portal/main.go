package main

import (
	"os"

	"studyhub/portal/internal/cli"
)

// @title Study Portal API
// @version 1.0
// @description Exam and course notes with generated summaries, quizzes and student activity.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
