// Command uploader posts a batch file of decoded game records to a
// tracker server. The batch file is a JSON array of game documents in the
// upload wire shape. It can also register a client or look up player
// stats instead of uploading.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"replay-tracker/internal/api"

	"github.com/spf13/pflag"
)

func main() {
	var (
		serverURL string
		apiKey    string
		clientID  string
		batchFile string
		register  bool
		statsTag  string
		hostname  string
		platform  string
		version   string
	)

	pflag.StringVar(&serverURL, "server", "http://localhost:8080", "tracker server base URL")
	pflag.StringVar(&apiKey, "key", "", "client API key")
	pflag.StringVar(&clientID, "client-id", "", "client id (optional, must match the key's client)")
	pflag.StringVar(&batchFile, "file", "", "path to a JSON array of game records")
	pflag.BoolVar(&register, "register", false, "register a new client and print its credentials")
	pflag.StringVar(&statsTag, "stats", "", "fetch and print stats for a player tag instead of uploading")
	pflag.StringVar(&hostname, "hostname", "", "hostname reported on registration")
	pflag.StringVar(&platform, "platform", "", "platform reported on registration")
	pflag.StringVar(&version, "version", "", "client version reported on registration")
	pflag.Parse()

	client := api.New(serverURL, apiKey)
	ctx := context.Background()

	if register {
		reg, err := client.Register(ctx, hostname, platform, version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "registration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("client_id: %s\napi_key:   %s\n", reg.ClientID, reg.APIKey)
		fmt.Println("store the api key now; it is not shown again")
		return
	}

	if statsTag != "" {
		view, err := client.GetPlayerStats(ctx, statsTag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stats lookup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("player:    %s\n", view.Tag)
		fmt.Printf("games:     %d (%d wins, %d losses)\n", view.TotalGames, view.Wins, view.Losses)
		fmt.Printf("win rate:  %.1f%%\n", view.WinRate)
		fmt.Printf("main:      %s\n", view.MostUsedCharacter)
		return
	}

	if batchFile == "" {
		fmt.Fprintln(os.Stderr, "--file is required (or use --register or --stats)")
		pflag.Usage()
		os.Exit(2)
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "--key is required for uploads")
		os.Exit(2)
	}

	data, err := os.ReadFile(batchFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read batch file: %v\n", err)
		os.Exit(1)
	}

	var games []json.RawMessage
	if err := json.Unmarshal(data, &games); err != nil {
		fmt.Fprintf(os.Stderr, "batch file is not a JSON array: %v\n", err)
		os.Exit(1)
	}

	result, err := client.UploadGames(ctx, clientID, games)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("new: %d  duplicates: %d  errors: %d\n", result.NewGames, result.Duplicates, result.Errors)
	for _, d := range result.Details {
		if d.Status == "error" {
			fmt.Printf("  game %d: %s\n", d.Index, d.Reason)
		}
	}
	if result.Errors > 0 {
		os.Exit(1)
	}
}
