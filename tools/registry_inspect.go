package main

import (
	"chat-relay/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	store := flag.String("store", "file", "Identity store backend (file or badger)")
	usersFile := flag.String("users", "users.json", "Path to the identity file")
	dbPath := flag.String("db", "data/badger", "Path to badger DB")
	archived := flag.Int("archive", 0, "Also list the N most recent archived messages (badger only)")
	colours := flag.Bool("colours", true, "Colourize section headers")
	flag.Parse()

	logger := logs.GetLoggerFromLevel(slog.LevelWarn)
	ctx := context.Background()

	var db *badger.DB
	if *store == "badger" || *archived > 0 {
		var err error
		db, err = openDB(*dbPath)
		if err != nil {
			log.Fatal("Error while opening Badger: ", err)
		}
		defer db.Close()
	}

	var identities map[string]string
	var err error
	switch *store {
	case "badger":
		identities, err = repositories.NewBadgerIdentityStore(db).Load(ctx)
	case "file":
		identities, err = repositories.NewFileIdentityStore(*usersFile, logger).Load(ctx)
	default:
		log.Fatalf("Unknown store %q", *store)
	}
	if err != nil {
		log.Fatal("Error while loading identities: ", err)
	}

	printHeader(os.Stdout, fmt.Sprintf("Registered identities (%d)", len(identities)), *colours)
	renderIdentities(os.Stdout, identities)

	if *archived > 0 {
		messages, err := repositories.NewArchiveRepository(db, logger).Recent(*archived)
		if err != nil {
			log.Fatal("Error while reading archive: ", err)
		}
		printHeader(os.Stdout, fmt.Sprintf("Archived messages (%d)", len(messages)), *colours)
		renderArchive(os.Stdout, messages)
	}
}

func printHeader(w io.Writer, title string, colours bool) {
	header := fmt.Sprintf("  ====== %s ======", title)
	if colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	_, _ = fmt.Fprintln(w, header)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// renderIdentities lists identities sorted by phone.
func renderIdentities(w io.Writer, identities map[string]string) {
	phones := make([]string, 0, len(identities))
	for phone := range identities {
		phones = append(phones, phone)
	}
	slices.Sort(phones)

	table := newTable(w, []string{"Phone", "Username"})
	for _, phone := range phones {
		table.Append([]string{phone, identities[phone]})
	}
	table.Render()
}

func renderArchive(w io.Writer, messages []repositories.ArchivedMessage) {
	table := newTable(w, []string{"ID", "At", "Sender", "Language", "Message"})
	for _, m := range messages {
		body := m.Body
		if runes := []rune(body); len(runes) > 60 {
			body = string(runes[:60]) + "..."
		}
		table.Append([]string{
			strconv.FormatInt(m.ID, 10),
			m.At.Format("2006-01-02 15:04:05"),
			m.Sender,
			m.Language,
			body,
		})
	}
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
