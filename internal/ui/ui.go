package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/gapless/internal/config"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/glebovdev/gapless/internal/service"
	"github.com/glebovdev/gapless/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	SeekStep              = 5 * time.Second
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	PlayerPanelHeight     = 12
	ProgressBarWidth      = 30
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime = 800 * time.Millisecond
	MinStatusDisplayTime  = 200 * time.Millisecond
	ProbeTimeout          = 15 * time.Second
)

var ErrNoTracks = errors.New("no playable audio files found")

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

type UI struct {
	app             *tview.Application
	playlist        *service.PlaylistService
	player          *player.Player
	trackList       *tview.Table
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	playerPanel     *tview.Flex
	titleView       *tview.TextView
	albumView       *tview.TextView
	formatView      *tview.TextView
	positionView    *tview.TextView
	volumeView      *tview.TextView
	mainLayout      *tview.Flex
	loadingScreen   *tview.Flex
	loadingText     *tview.TextView
	progressBar     *tview.TextView
	pages           *tview.Pages
	stopUpdates     chan struct{}
	playingIndex    int
	volume          volume
	config          *config.Config
	autoplay        bool
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	animationFrame  int
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer
	colors          struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		modalBackground  tcell.Color
	}
}

func NewUI(p *player.Player, playlist *service.PlaylistService, cfg *config.Config, autoplay bool) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		player:        p,
		playlist:      playlist,
		stopUpdates:   make(chan struct{}),
		playingIndex:  -1,
		volume:        volume{level: cfg.Volume},
		config:        cfg,
		autoplay:      autoplay,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.applyVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer(p)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	ui.config.Volume = ui.volume.level
	ui.mu.Unlock()

	if t := ui.playlist.GetTrack(ui.playlist.PlayingIndex()); t != nil {
		ui.config.LastDir = filepath.Dir(t.Path)
	}

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.SaveConfig()
	ui.playlist.StopMonitor()
	if err := ui.playlist.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop playback")
	}
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.loadPlaylistAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Loading playlist... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderProgressBar(0, ProgressBarWidth))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func renderProgressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderProgressBar(fromPercent, ProgressBarWidth)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderProgressBar(p, ProgressBarWidth); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

func (ui *UI) loadPlaylistAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	if ui.playlist.TrackCount() == 0 {
		return ErrNoTracks
	}
	ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Reading track info... (2/3)")
	})

	ctx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
	if err := ui.playlist.Probe(ctx); err != nil {
		log.Warn().Err(err).Msg("Track info incomplete")
	}
	cancel()
	log.Debug().Msgf("Probed %d tracks in %v", ui.playlist.TrackCount(), time.Since(startTime))

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ui.setupUI()
	ui.playlist.SetOnTrackChange(ui.onTrackChanged)
	ui.playlist.StartMonitor(service.DefaultMonitorInterval)

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.trackList)
		ui.trackList.Select(1, 0)
		ui.startUpdates()

		if ui.autoplay {
			ui.onTrackSelected(0)
		}
	})

	return nil
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.playerPanel.SetBackgroundColor(ui.colors.background)
	ui.playerPanel.AddItem(ui.createContentPanel(), 0, 1, false)

	ui.trackList = ui.createTrackListTable()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.trackList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage(pageModal) || ui.pages.HasPage(pageErrorModal) {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	spacer := func() *tview.Box { return tview.NewBox().SetBackgroundColor(ui.colors.headerBackground) }

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(spacer(), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(spacer(), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(spacer(), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(spacer(), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) onTrackSelected(index int) {
	if index < 0 || index >= ui.playlist.TrackCount() {
		return
	}

	if index == ui.playingIndex && ui.player.IsPlaying() {
		return
	}

	go func() {
		log.Info().Int("index", index).Msg("Starting playback")
		if err := ui.playlist.QueueFrom(index); err != nil {
			log.Error().Err(err).Msg("Failed to start playback")
			ui.app.QueueUpdateDraw(func() {
				ui.showError(err)
			})
		}
	}()
}

// onTrackChanged runs on the playlist monitor goroutine.
func (ui *UI) onTrackChanged(index int) {
	ui.app.QueueUpdateDraw(func() {
		previous := ui.playingIndex
		ui.playingIndex = index

		if previous >= 0 && previous != index {
			ui.setTrackRow(ui.trackList, previous+1, previous)
		}
		ui.updateTrackListPlayingIndicator()
		ui.updateNowPlaying()
	})
}

func (ui *UI) newLabel(text string) *tview.TextView {
	label := tview.NewTextView()
	label.SetText(text)
	label.SetTextColor(ui.colors.foreground)
	label.SetBackgroundColor(ui.colors.background)
	label.SetWrap(false)
	return label
}

func (ui *UI) newValue(bold bool) *tview.TextView {
	value := tview.NewTextView()
	value.SetDynamicColors(true)
	value.SetTextColor(ui.colors.highlight)
	value.SetBackgroundColor(ui.colors.background)
	value.SetWrap(false)
	style := tcell.StyleDefault.Background(ui.colors.background)
	if bold {
		style = style.Attributes(tcell.AttrBold)
	}
	value.SetTextStyle(style)
	return value
}

func (ui *UI) createContentPanel() *tview.Flex {
	ui.titleView = ui.newValue(true)
	ui.albumView = ui.newValue(false)
	ui.formatView = ui.newValue(false)
	ui.positionView = ui.newValue(false)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.newLabel(" Playing:"), 1, 0, false).
		AddItem(ui.titleView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.newLabel(" Album:"), 1, 0, false).
		AddItem(ui.albumView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.newLabel(" Format:"), 1, 0, false).
		AddItem(ui.formatView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.positionView, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createVolumeView()
	ui.updateVolumeDisplay()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, volumeBarWidth, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	ui.updateNowPlaying()
	return contentWithPadding
}

func (ui *UI) highlighted(text string) string {
	return fmt.Sprintf(" [%s]%s[-]", ui.colors.highlight.String(), tview.Escape(text))
}

func (ui *UI) updateNowPlaying() {
	if ui.titleView == nil {
		return
	}

	t := ui.playlist.GetTrack(ui.playingIndex)
	if t == nil {
		ui.titleView.SetText(ui.highlighted("Nothing playing"))
		ui.albumView.SetText(ui.highlighted("-"))
		ui.formatView.SetText(ui.highlighted("-"))
		ui.updatePosition()
		return
	}

	ui.titleView.SetText(ui.highlighted(t.DisplayName()))
	ui.albumView.SetText(ui.highlighted(t.Album))

	format := strings.ToUpper(t.Ext)
	if f := ui.player.Format(); f.Valid() {
		format += " " + formatShort(f)
	}
	ui.formatView.SetText(ui.highlighted(format))
	ui.updatePosition()
}

func (ui *UI) updatePosition() {
	if ui.positionView == nil {
		return
	}

	t, err := ui.player.PlaybackTime()
	if err != nil {
		ui.positionView.SetText(" " + renderProgressBar(0, ProgressBarWidth))
		return
	}

	percent := 0
	if t.Total > 0 {
		percent = int(t.Current * 100 / t.Total)
	}
	ui.positionView.SetText(fmt.Sprintf(" [%s]%s[-] %s",
		ui.colors.highlight.String(),
		renderProgressBar(percent, ProgressBarWidth),
		formatPosition(t)))
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

// startUpdates drives the spinner, the status line and the position display.
func (ui *UI) startUpdates() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	stopCh := ui.stopUpdates
	ui.mu.Unlock()

	go func() {
		ticker := time.NewTicker(ui.playingSpinner.FPS)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				ui.mu.Lock()
				ui.animationFrame++
				ui.mu.Unlock()

				ui.statusRenderer.AdvanceAnimation()

				ui.app.QueueUpdateDraw(func() {
					ui.updateTrackListPlayingIndicator()
					ui.updatePosition()
				})
			}
		}
	}()
}

func (ui *UI) togglePlayback() {
	switch ui.player.State() {
	case player.StatePlaying, player.StatePaused, player.StatePending:
		if err := ui.player.PlayPause(); err != nil {
			ui.showError(err)
		}
		ui.updateTrackListPlayingIndicator()
	default:
		ui.playSelected()
	}
}

func (ui *UI) playSelected() {
	row, _ := ui.trackList.GetSelection()
	if row > 0 && row <= ui.playlist.TrackCount() {
		ui.onTrackSelected(row - 1)
	}
}

func (ui *UI) seek(delta time.Duration) {
	var err error
	if delta < 0 {
		err = ui.player.SeekBackward(-delta)
	} else {
		err = ui.player.SeekForward(delta)
	}

	switch {
	case err == nil:
		ui.updatePosition()
	case errors.Is(err, player.ErrNoCurrentTrack), errors.Is(err, player.ErrSeekPending):
	default:
		log.Debug().Err(err).Dur("delta", delta).Msg("Seek rejected")
	}
}

// runAsync calls fn off the draw goroutine; playlist calls wait for the
// decode worker.
func (ui *UI) runAsync(what string, fn func() error) {
	go func() {
		if err := fn(); err != nil && !errors.Is(err, service.ErrNotPlaying) {
			log.Error().Err(err).Msgf("Failed to %s", what)
			ui.app.QueueUpdateDraw(func() {
				ui.showError(err)
			})
		}
	}()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayback()
			return nil
		case 'n', 'N', '>':
			ui.runAsync("skip to next track", ui.playlist.Next)
			return nil
		case 'p', 'P', '<':
			ui.runAsync("go to previous track", ui.playlist.Previous)
			return nil
		case 's', 'S':
			ui.runAsync("stop playback", ui.playlist.Stop)
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		case 'i', 'I':
			ui.showTrackInfoModal()
			return nil
		}
	case tcell.KeyEnter:
		ui.playSelected()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seek(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seek(-SeekStep)
		return nil
	}
	return event
}

// trackAt is the playlist entry shown on a table row.
func (ui *UI) trackAt(row int) *track.Track {
	return ui.playlist.GetTrack(row - 1)
}
