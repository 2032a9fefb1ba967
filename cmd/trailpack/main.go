package main

import (
	"log"

	"github.com/hikemate/trailpack/internal/app"
	"github.com/hikemate/trailpack/pkg/config"
)

func main() {
	realMain()
}

func realMain() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
