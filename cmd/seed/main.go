package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/services"
	"gopkg.in/yaml.v3"
)

func main() {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}

	file := flag.String("file", "content.yaml", "seed file describing the site content")
	dbPath := flag.String("db", filepath.Join(cfgDir, "assocsite", "store.db"), "path of the store")
	flag.Parse()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal(fmt.Errorf("error opening seed file: %w", err))
	}
	defer f.Close()

	var seed services.SeedFile
	if err := yaml.NewDecoder(f).Decode(&seed); err != nil {
		log.Fatal(fmt.Errorf("error decoding seed file: %w", err))
	}

	content, err := seed.Content(time.Now())
	if err != nil {
		log.Fatal(fmt.Errorf("invalid seed file: %w", err))
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating store directory: %w", err))
	}
	boltDB, err := services.NewBoltDB(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer boltDB.Close()

	if err := boltDB.ReplaceContent(context.Background(), content); err != nil {
		log.Fatal(fmt.Errorf("error writing content: %w", err))
	}

	log.Printf("Seeded %s: %d menus, %d categories, %d articles, %d banners, %d settings",
		*dbPath, len(content.Menus), len(content.Categories), len(content.Articles),
		len(content.Banners), len(content.Settings))
}
