package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/glebovdev/gapless/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxTitleWidth = 45

func (ui *UI) createTrackListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(fmt.Sprintf("Tracks (%d)", ui.playlist.TrackCount())).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		text      string
		align     int
		expansion int
	}{
		{" ", tview.AlignLeft, 0},
		{"#", tview.AlignRight, 0},
		{"Title", tview.AlignLeft, 2},
		{"Album", tview.AlignLeft, 1},
		{"Type", tview.AlignLeft, 0},
		{"Length", tview.AlignRight, 0},
	}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h.text).
			SetTextColor(ui.colors.foreground).
			SetBackgroundColor(ui.colors.headerBackground).
			SetAlign(h.align).
			SetExpansion(h.expansion).
			SetSelectable(false))
	}

	trackCount := ui.playlist.TrackCount()
	for i := 0; i < trackCount; i++ {
		ui.setTrackRow(table, i+1, i)
	}

	// Enter is handled globally; this catches mouse selection.
	table.SetSelectedFunc(func(row, column int) {
		if t := ui.trackAt(row); t != nil {
			log.Debug().Msgf("Selected track: %s", t.DisplayName())
			ui.onTrackSelected(row - 1)
		}
	})

	return table
}

func (ui *UI) setTrackRow(table *tview.Table, row int, index int) {
	t := ui.playlist.GetTrack(index)
	if t == nil {
		return
	}

	table.SetCell(row, 0, tview.NewTableCell(ui.playIcon(index)).
		SetTextColor(ui.colors.highlight).
		SetMaxWidth(2))

	table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", index+1)).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))

	table.SetCell(row, 2, tview.NewTableCell(tview.Escape(t.DisplayName())).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxTitleWidth).
		SetExpansion(2))

	table.SetCell(row, 3, tview.NewTableCell(tview.Escape(t.Album)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(30).
		SetExpansion(1))

	table.SetCell(row, 4, tview.NewTableCell(t.Ext).
		SetTextColor(ui.colors.foreground))

	table.SetCell(row, 5, tview.NewTableCell(trackLength(t)).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

func trackLength(t *track.Track) string {
	if t.Duration <= 0 {
		return "--:--"
	}
	return track.FormatDuration(t.Duration)
}

func (ui *UI) playIcon(index int) string {
	if index != ui.playingIndex {
		return " "
	}
	if ui.player.State() == player.StatePaused {
		return PauseIcon
	}
	return "➤"
}

func (ui *UI) updateTrackListPlayingIndicator() {
	if ui.trackList == nil {
		return
	}
	if ui.playingIndex < 0 || ui.playingIndex >= ui.playlist.TrackCount() {
		return
	}

	row := ui.playingIndex + 1
	t := ui.trackAt(row)
	if t == nil {
		return
	}

	if playCell := ui.trackList.GetCell(row, 0); playCell != nil {
		playCell.SetText(ui.playIcon(ui.playingIndex))
	}

	nameCell := ui.trackList.GetCell(row, 2)
	if nameCell == nil {
		return
	}

	name := t.DisplayName()
	if ui.player.State() != player.StatePlaying {
		nameCell.SetText(tview.Escape(name))
		return
	}

	indicator := ui.getPlayingIndicator()
	maxLen := maxTitleWidth - len([]rune(indicator)) - 1
	if runes := []rune(name); len(runes) > maxLen {
		name = string(runes[:maxLen-3]) + "..."
	}
	nameCell.SetText(tview.Escape(name) + " " + indicator)
}
