// dbinspect dumps the game log straight out of a badger directory, for
// debugging a deployment without going through the wire protocol.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"lobby-lab/domain"
)

func main() {
	dbPath := flag.String("db", "./data/lobby-db", "Path to badger DB")
	prefix := flag.String("prefix", "gamelog:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Match", "Room", "Game", "Version", "Players", "Start", "End", "Outcome"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			err := item.Value(func(v []byte) error {
				var entry domain.GameLogEntry
				if err := json.Unmarshal(v, &entry); err != nil {
					// Keep scanning instead of stopping the whole dump.
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				outcome := ""
				if entry.Aborted {
					outcome = "aborted: " + entry.Reason
				} else {
					parts := make([]string, 0, len(entry.Results))
					for _, r := range entry.Results {
						parts = append(parts, fmt.Sprintf("%s:%s", r.Player, r.Outcome))
					}
					outcome = strings.Join(parts, " ")
				}

				displayID := entry.MatchID
				if len(displayID) > 8 {
					displayID = displayID[:8]
				}

				table.Append([]string{
					displayID,
					string(entry.RoomID),
					entry.GameName,
					entry.GameVersion,
					strings.Join(entry.Users, ","),
					entry.StartAt.Format("15:04:05"),
					entry.EndAt.Format("15:04:05"),
					outcome,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
