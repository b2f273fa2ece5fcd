package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "base URL of the chat relay")
	debug := flag.Bool("debug", false, "log client diagnostics to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := services.NewChatClient(*baseURL, &http.Client{}, services.DefaultChatTexts, logger)
	session := client.NewSession()

	for _, msg := range session.Messages() {
		fmt.Printf("assistant> %s\n\n", msg.Content)
	}

	// Ctrl-C while a reply streams cancels the turn; at the prompt it quits.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("you> ")

		var line string
		select {
		case <-interrupts:
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			line = l
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-interrupts:
				cancel()
			case <-ctx.Done():
			}
		}()

		runTurn(ctx, session, line)
		cancel()
	}
}

func runTurn(ctx context.Context, session *services.ChatSession, line string) {
	updates, err := session.SendMessage(ctx, line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	fmt.Print("assistant> ")
	var printed string
	for msg := range updates {
		if strings.HasPrefix(msg.Content, printed) {
			fmt.Print(msg.Content[len(printed):])
		} else {
			// A failure replaced the partial reply.
			fmt.Printf("\n%s", msg.Content)
		}
		printed = msg.Content
	}

	if session.State() == models.TurnCancelled {
		fmt.Print(" [cancelled]")
	}
	fmt.Print("\n\n")
}
