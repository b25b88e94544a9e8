package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tycoon/internal/ads"
	"tycoon/internal/engine"
	"tycoon/internal/game"
)

const refreshEvery = 250 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Click   key.Binding
	Buy     key.Binding
	Sell    key.Binding
	Upgrade key.Binding
	Ad      key.Binding
	Save    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Buy, k.Sell, k.Ad, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Click, k.Upgrade},
		{k.Buy, k.Sell, k.Ad, k.Save},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Click:   key.NewBinding(key.WithKeys("c", " "), key.WithHelp("c/space", "click")),
	Buy:     key.NewBinding(key.WithKeys("b", "enter"), key.WithHelp("b", "buy selected")),
	Sell:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sell selected")),
	Upgrade: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upgrade click")),
	Ad:      key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "watch ad")),
	Save:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type refreshMsg time.Time

type adDoneMsg struct {
	out ads.Outcome
	err error
}

type row struct {
	business bool
	id       string
}

type playModel struct {
	ctx     context.Context
	eng     *engine.Engine
	dash    game.Dashboard
	rows    []row
	cursor  int
	toast   string
	toastOK bool
	loading bool
	help    help.Model
}

func newPlayModel(ctx context.Context, e *engine.Engine) playModel {
	m := playModel{ctx: ctx, eng: e, help: help.New()}
	for _, a := range e.Game().Catalog().Assets() {
		m.rows = append(m.rows, row{id: a.ID})
	}
	for _, b := range e.Game().Catalog().Businesses() {
		m.rows = append(m.rows, row{business: true, id: b.ID})
	}
	m.dash = e.Game().Dashboard()
	return m
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m playModel) Init() tea.Cmd {
	return refresh()
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.dash = m.eng.Game().Dashboard()
		return m, refresh()
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case adDoneMsg:
		m.loading = false
		switch {
		case errors.Is(msg.err, ads.ErrAdUnavailable):
			m.notify("No ad available right now.", false)
		case msg.err != nil:
			m.notify(msg.err.Error(), false)
		default:
			m.notify(fmt.Sprintf("%s x%s booster active", msg.out.Booster.Kind, trimFloat(msg.out.Booster.Magnitude)), true)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m playModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	g := m.eng.Game()
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Click):
		res, err := g.Click(1)
		m.report(err, fmt.Sprintf("+%s", formatMicros(res.EarnedMicros)))
	case key.Matches(msg, keys.Upgrade):
		res, err := g.UpgradeClick()
		m.report(err, fmt.Sprintf("click upgraded for %s", formatMicros(res.AmountMicros)))
	case key.Matches(msg, keys.Buy):
		r := m.rows[m.cursor]
		var (
			res game.TradeResult
			err error
		)
		if r.business {
			res, err = g.BuyBusiness(r.id)
		} else {
			res, err = g.BuyAsset(r.id, 1)
		}
		m.report(err, fmt.Sprintf("bought %s for %s", r.id, formatMicros(res.AmountMicros)))
	case key.Matches(msg, keys.Sell):
		r := m.rows[m.cursor]
		if r.business {
			m.notify("businesses cannot be sold", false)
			break
		}
		res, err := g.SellAsset(r.id, 1)
		m.report(err, fmt.Sprintf("sold %s for %s", r.id, formatMicros(res.AmountMicros)))
	case key.Matches(msg, keys.Save):
		rep := m.eng.Save(m.ctx)
		m.report(rep.LocalErr, "saved")
	case key.Matches(msg, keys.Ad):
		if m.loading {
			return m, nil
		}
		placements := ads.Placements()
		idx := int(msg.String()[0] - '1')
		if idx < 0 || idx >= len(placements) {
			return m, nil
		}
		m.loading = true
		m.notify("loading ad...", true)
		return m, m.watchAd(placements[idx].ID)
	}
	m.dash = g.Dashboard()
	return m, nil
}

func (m playModel) watchAd(placementID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.eng.Ads().WatchAd(m.ctx, placementID)
		return adDoneMsg{out: out, err: err}
	}
}

func (m *playModel) report(err error, ok string) {
	if err != nil {
		m.notify(err.Error(), false)
		return
	}
	m.notify(ok, true)
}

func (m *playModel) notify(text string, ok bool) {
	m.toast = text
	m.toastOK = ok
}

func (m playModel) View() string {
	d := m.dash
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("TYCOON  level %d", d.Level)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "balance %s   income %s/s   click %s   upgrade %s\n",
		formatMicros(d.BalanceMicros), formatMicros(d.IncomePerSecMicros),
		formatMicros(d.ClickValueMicros), formatMicros(d.ClickUpgradeMicros))
	fmt.Fprintf(&b, "xp %s / %s\n", comma(d.Experience), comma(d.NextLevelXP))

	var list strings.Builder
	i := 0
	for _, a := range d.Assets {
		list.WriteString(m.line(i, fmt.Sprintf("%-14s %6s  next %12s  %10s/s", a.ID, comma(a.Owned), formatMicros(a.NextPriceMicros), formatMicros(a.IncomePerSecMicros))))
		i++
	}
	for _, biz := range d.Businesses {
		list.WriteString(m.line(i, fmt.Sprintf("%-14s %6s  next %12s  %10s/s", biz.ID, comma(biz.Quantity), formatMicros(biz.NextPriceMicros), formatMicros(biz.IncomePerSecMicros))))
		i++
	}
	b.WriteString(panelStyle.Render(strings.TrimRight(list.String(), "\n")))
	b.WriteString("\n")

	if len(d.Boosters) > 0 {
		var parts []string
		for _, bo := range d.Boosters {
			left := (time.Duration(bo.RemainingMs) * time.Millisecond).Round(time.Second)
			parts = append(parts, fmt.Sprintf("%s x%s %s", bo.Kind, trimFloat(bo.Magnitude), left))
		}
		b.WriteString(goodStyle.Render("boosters: " + strings.Join(parts, "  ")))
		b.WriteString("\n")
	}
	if m.toast != "" {
		style := goodStyle
		if !m.toastOK {
			style = badStyle
		}
		b.WriteString(style.Render(m.toast))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(adLegend()))
	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m playModel) line(i int, text string) string {
	if i == m.cursor {
		return cursorStyle.Render("> "+text) + "\n"
	}
	return "  " + text + "\n"
}

func adLegend() string {
	var parts []string
	for i, p := range ads.Placements() {
		parts = append(parts, fmt.Sprintf("%d %s", i+1, p.ID))
	}
	return "ads: " + strings.Join(parts, "  ")
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play live with idle income ticking",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("play needs an interactive terminal; use the one-shot commands instead")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			e, err := openEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close()
			greet(e)

			done := make(chan error, 1)
			go func() { done <- e.Run(ctx) }()

			_, runErr := tea.NewProgram(newPlayModel(ctx, e), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			cancel()
			if err := <-done; err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
				return runErr
			}
			printSuccess("Game saved. See you soon.")
			return nil
		},
	}
}
