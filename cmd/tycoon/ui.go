package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tycoon/internal/ads"
	"tycoon/internal/cli"
	"tycoon/internal/game"
	"tycoon/internal/market"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	numbers = message.NewPrinter(language.English)

	maxCoins = decimal.NewFromInt(math.MaxInt64 / game.MicrosPerCoin)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	return text == "y" || text == "yes", nil
}

// parseCoins reads a user amount like "12.5" into micros.
func parseCoins(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be > 0")
	}
	if d.GreaterThan(maxCoins) {
		return 0, fmt.Errorf("amount must be at most %s", maxCoins)
	}
	return d.Mul(decimal.NewFromInt(game.MicrosPerCoin)).Round(0).IntPart(), nil
}

func renderDashboard(d game.Dashboard) {
	accent.Printf("\n== TYCOON (Level %d) ==\n", d.Level)
	fmt.Printf("Balance:         %s coins\n", formatMicros(d.BalanceMicros))
	fmt.Printf("Income:          %s coins/s\n", formatMicros(d.IncomePerSecMicros))
	fmt.Printf("Click value:     %s coins\n", formatMicros(d.ClickValueMicros))
	fmt.Printf("Next upgrade:    %s coins\n", formatMicros(d.ClickUpgradeMicros))
	fmt.Printf("Experience:      %s / %s\n", comma(d.Experience), comma(d.NextLevelXP))
	fmt.Printf("Total earned:    %s coins\n", formatMicros(d.TotalEarnedMicros))
	fmt.Printf("Total clicks:    %s\n", comma(d.TotalClicks))

	fmt.Println()
	accent.Println("Investments")
	owned := 0
	for _, a := range d.Assets {
		if a.Owned == 0 {
			continue
		}
		if owned == 0 {
			fmt.Printf("%-14s %-22s %8s %14s %14s %12s\n", "ID", "NAME", "OWNED", "NEXT", "SELL", "INCOME/S")
		}
		owned++
		fmt.Printf("%-14s %-22s %8s %14s %14s %12s\n",
			a.ID,
			truncate(a.Name, 22),
			comma(a.Owned),
			formatMicros(a.NextPriceMicros),
			formatMicros(a.SellValueMicros),
			formatMicros(a.IncomePerSecMicros),
		)
	}
	if owned == 0 {
		printInfo("No investments yet. Try `tycoon catalog`.")
	}

	fmt.Println()
	accent.Println("Businesses")
	owned = 0
	for _, b := range d.Businesses {
		if !b.Owned {
			continue
		}
		if owned == 0 {
			fmt.Printf("%-14s %-22s %8s %14s %12s\n", "ID", "NAME", "QTY", "NEXT", "INCOME/S")
		}
		owned++
		fmt.Printf("%-14s %-22s %8s %14s %12s\n",
			b.ID,
			truncate(b.Name, 22),
			comma(b.Quantity),
			formatMicros(b.NextPriceMicros),
			formatMicros(b.IncomePerSecMicros),
		)
	}
	if owned == 0 {
		printInfo("No businesses yet.")
	}

	if len(d.Boosters) > 0 {
		fmt.Println()
		accent.Println("Boosters")
		for _, b := range d.Boosters {
			left := (time.Duration(b.RemainingMs) * time.Millisecond).Round(time.Second)
			fmt.Printf("%-10s x%-6s %s left\n", b.Kind, trimFloat(b.Magnitude), left)
		}
	}
	fmt.Println()
}

func renderCatalog(d game.Dashboard) {
	accent.Println("\n== INVESTMENTS ==")
	fmt.Printf("%-14s %-22s %8s %14s %12s\n", "ID", "NAME", "OWNED", "PRICE", "INCOME/S")
	for _, a := range d.Assets {
		fmt.Printf("%-14s %-22s %8s %14s %12s\n",
			a.ID, truncate(a.Name, 22), comma(a.Owned), formatMicros(a.NextPriceMicros), formatMicros(a.IncomePerSecMicros))
	}
	accent.Println("\n== BUSINESSES ==")
	fmt.Printf("%-14s %-22s %8s %14s %12s\n", "ID", "NAME", "QTY", "PRICE", "INCOME/S")
	for _, b := range d.Businesses {
		fmt.Printf("%-14s %-22s %8s %14s %12s\n",
			b.ID, truncate(b.Name, 22), comma(b.Quantity), formatMicros(b.NextPriceMicros), formatMicros(b.IncomePerSecMicros))
	}
	fmt.Println()
}

func renderPlacements() {
	accent.Println("\n== REWARDED ADS ==")
	fmt.Printf("%-14s %-22s %-10s %6s %10s\n", "ID", "TITLE", "BOOSTER", "MULT", "DURATION")
	for _, p := range ads.Placements() {
		fmt.Printf("%-14s %-22s %-10s %6s %10s\n", p.ID, p.Title, p.Kind, "x"+trimFloat(p.Magnitude), p.Duration)
	}
	fmt.Println()
}

func renderSKUs() {
	accent.Println("\n== PREMIUM ==")
	fmt.Printf("%-14s %-18s %8s %14s\n", "ID", "TITLE", "PRICE", "COINS")
	for _, s := range ads.SKUs() {
		fmt.Printf("%-14s %-18s %8s %14s\n", s.ID, s.Title, formatCents(s.PriceCents), formatMicros(s.CoinsMicros))
	}
	fmt.Println()
}

func renderChart(assetID string, series []market.Point, regime market.Regime) {
	accent.Printf("\n== %s (%s market) ==\n", strings.ToUpper(assetID), regime)
	if len(series) == 0 {
		printInfo("No chart data yet.")
		return
	}
	last := series[len(series)-1].Factor
	first := series[0].Factor
	fmt.Printf("%s  now x%.3f  %s\n", sparkline(series), last, colorizePercent((last/first-1)*100))
	fmt.Println()
}

func renderLeaderboard(rows []cli.LeaderboardRow) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s\n", "RANK", "PLAYER", "SCORE")
	for i, row := range rows {
		fmt.Printf("%-6d %-18s %14s\n", i+1, truncate(row.Username, 18), comma(row.Score))
	}
	fmt.Println()
}

func renderStats(stats map[string]any) {
	accent.Println("\n== BACKEND STATS ==")
	for _, key := range []string{"totalPlayers", "activeToday", "adsWatched", "purchases", "uptimeSeconds", "ecpmSamples"} {
		if v, ok := stats[key]; ok {
			fmt.Printf("%-16s %v\n", key, v)
		}
	}
	fmt.Println()
}

func renderLogs(lines []string, limit int) {
	accent.Println("\n== BACKEND LOGS ==")
	if len(lines) == 0 {
		printInfo("No requests logged yet.")
		return
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Println()
}

func renderECPM(history []cli.ECPMRecord) {
	accent.Println("\n== eCPM HISTORY ==")
	if len(history) == 0 {
		printInfo("No eCPM samples yet.")
		return
	}
	fmt.Printf("%-20s %-12s %-14s %8s\n", "RECEIVED", "SDK", "SOURCE", "eCPM")
	var total float64
	for _, r := range history {
		total += r.Value
		fmt.Printf("%-20s %-12s %-14s %8.2f\n", r.ReceivedAt.Local().Format("2006-01-02 15:04:05"), truncate(r.SDK, 12), truncate(r.Source, 14), r.Value)
	}
	fmt.Printf("average %.2f over %d samples\n\n", total/float64(len(history)), len(history))
}

func sparkline(series []market.Point) string {
	const bars = "▁▂▃▄▅▆▇█"
	runes := []rune(bars)
	lo, hi := series[0].Factor, series[0].Factor
	for _, p := range series {
		lo = min(lo, p.Factor)
		hi = max(hi, p.Factor)
	}
	var b strings.Builder
	for _, p := range series {
		idx := 0
		if hi > lo {
			idx = int((p.Factor - lo) / (hi - lo) * float64(len(runes)-1))
		}
		b.WriteRune(runes[idx])
	}
	return b.String()
}

func colorizeMicros(v int64) string {
	text := signedMicros(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / game.MicrosPerCoin
	frac := (v % game.MicrosPerCoin) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func signedMicros(v int64) string {
	if v > 0 {
		return "+" + formatMicros(v)
	}
	return formatMicros(v)
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}

func comma(v int64) string {
	return numbers.Sprintf("%d", v)
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
