package main

import (
	"log"

	"echobot/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatal(err)
	}

	application.RunLambda()
}
