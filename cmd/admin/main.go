package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/config"
	"github.com/tendant/music-catalog/pkg/catalog/logging"
)

const usage = `Music Catalog Admin CLI

Operator tool for inspecting and repairing the catalog. It talks to the
catalog repository and blob store directly and bypasses the HTTP admin gate.

USAGE:
  admin <command> [options] <id>...

COMMANDS:
  song          Show songs by id
  album         Show albums by id, with their song lists
  verify        Check that each album and the songs referencing it agree
  delete-song   Delete songs, unlinking them from their albums
  delete-album  Delete albums and every song on them

ENVIRONMENT VARIABLES:
  DATABASE_URL      memory, postgres:// or mongodb:// URL (default: memory)
  DB_SCHEMA         PostgreSQL schema name (default: catalog)
  MONGO_DATABASE    MongoDB database name (default: music_catalog)
  STORAGE_BACKEND   memory, fs or s3 (default: memory)

  Configuration can be loaded from a .env file in the current directory.

OPTIONS:
  --json            Output as JSON

EXIT STATUS:
  0 success, 1 usage or runtime error, 2 integrity violation found
`

const (
	exitOK        = 0
	exitError     = 1
	exitIntegrity = 2
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "--help" || os.Args[1] == "-h" {
		fmt.Print(usage + "\n")
		os.Exit(exitOK)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitError)
	}

	logger := logging.New(cfg.Environment, os.Stderr)
	ctx := context.Background()

	// Operators already hold repository credentials; the gate protects the
	// HTTP surface only.
	svc, cleanup, err := cfg.BuildService(ctx, logger, catalog.WithAuthorizer(catalog.AllowAll()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build service: %v\n", err)
		os.Exit(exitError)
	}

	code := run(ctx, svc, os.Args[1:], os.Stdout, os.Stderr)
	cleanup()
	os.Exit(code)
}

func run(ctx context.Context, svc catalog.Service, args []string, stdout, stderr io.Writer) int {
	command := args[0]
	ids, useJSON, err := parseArgs(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
		return exitError
	}
	if len(ids) == 0 {
		fmt.Fprintf(stderr, "%s requires at least one id\n", command)
		return exitError
	}

	switch command {
	case "song":
		return handleSongs(ctx, svc, ids, useJSON, stdout, stderr)
	case "album":
		return handleAlbums(ctx, svc, ids, useJSON, stdout, stderr)
	case "verify":
		return handleVerify(ctx, svc, ids, useJSON, stdout, stderr)
	case "delete-song":
		return handleDelete(ctx, ids, stdout, stderr, "song", svc.DeleteSong)
	case "delete-album":
		return handleDelete(ctx, ids, stdout, stderr, "album", svc.DeleteAlbum)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", command, usage)
		return exitError
	}
}

func parseArgs(args []string) ([]uuid.UUID, bool, error) {
	var (
		ids     []uuid.UUID
		useJSON bool
	)
	for _, arg := range args {
		if arg == "--json" {
			useJSON = true
			continue
		}
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, false, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, useJSON, nil
}

func handleSongs(ctx context.Context, svc catalog.Service, ids []uuid.UUID, useJSON bool, stdout, stderr io.Writer) int {
	code := exitOK
	var songs []*catalog.Song
	for _, id := range ids {
		song, err := svc.GetSong(ctx, id)
		if err != nil {
			fmt.Fprintf(stderr, "song %s: %v\n", id, err)
			code = exitError
			continue
		}
		songs = append(songs, song)
	}

	if useJSON {
		writeJSON(stdout, songs)
		return code
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTITLE\tARTIST\tDURATION\tALBUM\n")
	for _, song := range songs {
		album := "-"
		if song.AlbumID != nil {
			album = song.AlbumID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n", song.ID, truncate(song.Title, 30), truncate(song.Artist, 20), song.Duration, album)
	}
	w.Flush()
	return code
}

func handleAlbums(ctx context.Context, svc catalog.Service, ids []uuid.UUID, useJSON bool, stdout, stderr io.Writer) int {
	code := exitOK
	var albums []*catalog.Album
	for _, id := range ids {
		album, err := svc.GetAlbum(ctx, id)
		if err != nil {
			fmt.Fprintf(stderr, "album %s: %v\n", id, err)
			code = exitError
			continue
		}
		albums = append(albums, album)
	}

	if useJSON {
		writeJSON(stdout, albums)
		return code
	}

	for _, album := range albums {
		fmt.Fprintf(stdout, "%s  %s - %s (%d)\n", album.ID, album.Artist, album.Title, album.ReleaseYear)
		for i, songID := range album.Songs {
			fmt.Fprintf(stdout, "  %2d. %s\n", i+1, songID)
		}
	}
	return code
}

// VerifyResult is the outcome of verifying one album
type VerifyResult struct {
	AlbumID    uuid.UUID  `json:"albumId"`
	Consistent bool       `json:"consistent"`
	SongID     *uuid.UUID `json:"songId,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func handleVerify(ctx context.Context, svc catalog.Service, ids []uuid.UUID, useJSON bool, stdout, stderr io.Writer) int {
	code := exitOK
	results := make([]VerifyResult, 0, len(ids))
	for _, id := range ids {
		result := VerifyResult{AlbumID: id, Consistent: true}
		err := svc.VerifyAlbum(ctx, id)

		var integrityErr *catalog.IntegrityError
		switch {
		case err == nil:
		case errors.As(err, &integrityErr):
			result.Consistent = false
			result.SongID = &integrityErr.SongID
			result.Error = integrityErr.Err.Error()
			code = exitIntegrity
		default:
			result.Consistent = false
			result.Error = err.Error()
			if code == exitOK {
				code = exitError
			}
		}
		results = append(results, result)
	}

	if useJSON {
		writeJSON(stdout, results)
		return code
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ALBUM\tSTATUS\tDETAIL\n")
	for _, r := range results {
		status := "ok"
		if !r.Consistent {
			status = "FAILED"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.AlbumID, status, r.Error)
	}
	w.Flush()
	if code != exitOK {
		slog.Warn("Verification found problems", "albums", len(ids))
	}
	return code
}

func handleDelete(ctx context.Context, ids []uuid.UUID, stdout, stderr io.Writer, kind string, del func(context.Context, uuid.UUID) error) int {
	code := exitOK
	for _, id := range ids {
		if err := del(ctx, id); err != nil {
			fmt.Fprintf(stderr, "%s %s: %v\n", kind, id, err)
			code = exitError
			continue
		}
		fmt.Fprintf(stdout, "Deleted %s %s\n", kind, id)
	}
	return code
}

func writeJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
