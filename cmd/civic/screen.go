package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eljojo/civic"
	"github.com/kataras/tablewriter"
	"github.com/lensesio/tableprinter"
)

type member struct {
	Name     string `header:"name"`
	ID       string `header:"id"`
	Aliases  string `header:"aliases"`
	Public   string `header:"public"`
	Followed string `header:"followed"`
}

func printRoomForever(app *civic.App, refreshRate time.Duration) {
	if refreshRate <= 0 {
		refreshRate = 10 * time.Minute
	}
	for {
		printRoom(app)
		time.Sleep(refreshRate)
	}
}

func printRoom(app *civic.App) {
	ctx := context.Background()
	state := app.Room.Snapshot()

	rows := make([]member, 0, len(state.Members))
	for _, id := range state.MemberIDs() {
		m, _ := state.Member(id)
		row := member{ID: shortID(id.String()), Aliases: strings.Join(m.Aliases, ", "), Public: "-", Followed: "-"}
		if p, err := app.Queries.GetProfile(ctx, id); err == nil && p != nil {
			row.Name = p.Name
			row.Public = "yes"
		}
		if ok, err := app.Publisher.IsFollowing(ctx, id); err == nil && ok {
			row.Followed = "yes"
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[j].Name > rows[i].Name
	})

	refreshed := "never"
	if !state.RefreshedAt.IsZero() {
		refreshed = humanize.Time(state.RefreshedAt)
	}
	fmt.Printf("🏠 %s · %s members · refreshed %s\n", state.Name, humanize.Comma(int64(len(rows))), refreshed)

	printer := tableprinter.New(os.Stdout)
	printer.BorderTop, printer.BorderBottom, printer.BorderLeft, printer.BorderRight = true, true, true, true
	printer.CenterSeparator = "│"
	printer.ColumnSeparator = "│"
	printer.RowSeparator = "─"
	printer.HeaderBgColor = tablewriter.BgBlackColor
	printer.HeaderFgColor = tablewriter.FgGreenColor

	printer.Print(rows)
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
