package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tycoon/internal/ads"
	cl "tycoon/internal/cli"
	"tycoon/internal/config"
	"tycoon/internal/engine"
	"tycoon/internal/save"
)

func main() {
	root := &cobra.Command{
		Use:          "tycoon",
		Short:        "Idle tycoon in your terminal",
		SilenceUsage: true,
	}

	root.AddCommand(
		newStatusCmd(),
		newClickCmd(),
		newBuyCmd(),
		newSellCmd(),
		newUpgradeCmd(),
		newBoostCmd(),
		newPremiumCmd(),
		newGambleCmd(),
		newChartCmd(),
		newCatalogCmd(),
		newSaveCmd(),
		newResetCmd(),
		newLeaderboardCmd(),
		newStatsCmd(),
		newLogsCmd(),
		newECPMCmd(),
		newPlayCmd(),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

// cliLogger keeps routine logs off the terminal; warnings still show.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func loadConfig() (config.GameConfig, error) {
	cfg, err := config.LoadGameFromEnv()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openEngine is replaced in tests to inject storage.
var openEngine = func(ctx context.Context, cfg config.GameConfig) (*engine.Engine, error) {
	return engine.Open(ctx, cfg, cliLogger())
}

type gameFunc func(ctx context.Context, e *engine.Engine) error

// withGame loads the save, credits offline time, runs fn and saves again.
func withGame(cmd *cobra.Command, fn gameFunc) error {
	return runGame(cmd, true, fn)
}

// withGameNoSave is for commands that write the save themselves.
func withGameNoSave(cmd *cobra.Command, fn gameFunc) error {
	return runGame(cmd, false, fn)
}

func runGame(cmd *cobra.Command, saveAfter bool, fn gameFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	greet(e)
	if err := fn(ctx, e); err != nil {
		return err
	}
	if saveAfter {
		warnSave(e.Save(ctx))
	}
	return nil
}

func warnSave(rep save.SaveReport) {
	if rep.LocalErr != nil {
		printWarn("Could not save progress: " + rep.LocalErr.Error())
	} else if rep.RemoteErr != nil {
		printWarn("Saved locally; cloud save failed.")
	}
}

func greet(e *engine.Engine) {
	cfg := e.Config()
	_, away, err := cl.TouchSession(cfg.Home, cfg.PlayerID, time.Now())
	if err != nil {
		slog.Debug("session touch failed", "err", err)
	}
	_, offline := e.Loaded()
	if offline.EarnedMicros <= 0 || away < time.Minute {
		return
	}
	msg := fmt.Sprintf("Welcome back! You were away %s and earned %s coins.", away.Round(time.Second), formatMicros(offline.EarnedMicros))
	if offline.Capped {
		msg += fmt.Sprintf(" (offline earnings cap %s reached)", cfg.MaxCatchUp)
	}
	printSuccess(msg)
}

func parseQty(args []string, idx int) (int64, error) {
	if len(args) <= idx {
		return 1, nil
	}
	n, err := strconv.ParseInt(args[idx], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("quantity must be a whole number > 0")
	}
	return n, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balance, income and holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(_ context.Context, e *engine.Engine) error {
				renderDashboard(e.Game().Dashboard())
				return nil
			})
		},
	}
}

func newClickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "click [n]",
		Short: "Click for coins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseQty(args, 0)
			if err != nil {
				return err
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().Click(n)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("+%s coins from %d clicks. Balance %s.", formatMicros(res.EarnedMicros), res.Clicks, formatMicros(res.BalanceMicros)))
				announceLevels(res.LevelUps)
				track(ctx, e, map[string]any{"event": "click", "count": n})
				return nil
			})
		},
	}
}

func newBuyCmd() *cobra.Command {
	buy := &cobra.Command{
		Use:   "buy",
		Short: "Buy investments or businesses",
	}
	buy.AddCommand(&cobra.Command{
		Use:   "asset <id> [qty]",
		Short: "Buy units of an investment",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty(args, 1)
			if err != nil {
				return err
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().BuyAsset(args[0], qty)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Bought %d %s for %s. Balance %s.", res.Quantity, res.ID, formatMicros(res.AmountMicros), formatMicros(res.BalanceMicros)))
				announceLevels(res.LevelUps)
				track(ctx, e, map[string]any{"event": "buy_asset", "asset": res.ID, "qty": res.Quantity})
				return nil
			})
		},
	})
	buy.AddCommand(&cobra.Command{
		Use:   "business <id>",
		Short: "Buy or expand a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().BuyBusiness(args[0])
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Now running %d x %s. Paid %s.", res.Owned, res.ID, formatMicros(res.AmountMicros)))
				announceLevels(res.LevelUps)
				track(ctx, e, map[string]any{"event": "buy_business", "business": res.ID})
				return nil
			})
		},
	})
	return buy
}

func newSellCmd() *cobra.Command {
	sell := &cobra.Command{
		Use:   "sell",
		Short: "Sell investments",
	}
	sell.AddCommand(&cobra.Command{
		Use:   "asset <id> [qty]",
		Short: "Sell units back at the chart price",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty(args, 1)
			if err != nil {
				return err
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().SellAsset(args[0], qty)
				if err != nil {
					return err
				}
				fmt.Printf("Sold %d %s: %s coins. %d left.\n", res.Quantity, res.ID, colorizeMicros(res.AmountMicros), res.Owned)
				track(ctx, e, map[string]any{"event": "sell_asset", "asset": res.ID, "qty": res.Quantity})
				return nil
			})
		},
	})
	return sell
}

func newUpgradeCmd() *cobra.Command {
	upgrade := &cobra.Command{
		Use:   "upgrade",
		Short: "Buy upgrades",
	}
	upgrade.AddCommand(&cobra.Command{
		Use:   "click",
		Short: "Raise the value of each click",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().UpgradeClick()
				if err != nil {
					return err
				}
				d := e.Game().Dashboard()
				printSuccess(fmt.Sprintf("Click upgraded to %s for %s. Next upgrade %s.", formatMicros(d.ClickValueMicros), formatMicros(res.AmountMicros), formatMicros(d.ClickUpgradeMicros)))
				track(ctx, e, map[string]any{"event": "upgrade_click", "level": res.Owned})
				return nil
			})
		},
	})
	return upgrade
}

func newBoostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boost [placement]",
		Short: "Watch a rewarded ad for a booster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				renderPlacements()
				return nil
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				printInfo("Loading ad...")
				out, err := e.Ads().WatchAd(ctx, args[0])
				if errors.Is(err, ads.ErrAdUnavailable) {
					printWarn("No ad available right now. Try again later.")
					return nil
				}
				if err != nil {
					return err
				}
				left := time.Until(time.UnixMilli(out.Booster.ExpiresAtMs)).Round(time.Second)
				printSuccess(fmt.Sprintf("%s booster x%s active for %s.", out.Booster.Kind, trimFloat(out.Booster.Magnitude), left))
				return nil
			})
		},
	}
}

func newPremiumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "premium [sku]",
		Short: "Buy a premium item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				renderSKUs()
				return nil
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				out, err := e.Ads().BuyPremium(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Purchased %s (order %s). Balance %s.", out.Receipt.SKU, out.Receipt.OrderID, formatMicros(out.BalanceMicros)))
				if out.Booster != nil {
					printInfo(fmt.Sprintf("%s booster x%s active.", out.Booster.Kind, trimFloat(out.Booster.Magnitude)))
				}
				return nil
			})
		},
	}
}

func newGambleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gamble <amount>",
		Short: "Double or nothing at the casino",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stake, err := parseCoins(args[0])
			if err != nil {
				return err
			}
			return withGame(cmd, func(ctx context.Context, e *engine.Engine) error {
				res, err := e.Game().Gamble(stake)
				if err != nil {
					return err
				}
				if res.Won {
					printSuccess(fmt.Sprintf("You won %s coins! Balance %s.", formatMicros(res.PayoutMicros), formatMicros(res.BalanceMicros)))
				} else {
					fmt.Printf("House wins: %s coins. Balance %s.\n", colorizeMicros(-res.StakeMicros), formatMicros(res.BalanceMicros))
				}
				track(ctx, e, map[string]any{"event": "gamble", "won": res.Won, "stake_micros": res.StakeMicros})
				return nil
			})
		},
	}
}

func newChartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chart <asset>",
		Short: "Show an investment's price chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(_ context.Context, e *engine.Engine) error {
				series, err := e.Market().Series(args[0])
				if err != nil {
					return err
				}
				renderChart(args[0], series, e.Market().Regime())
				return nil
			})
		},
	}
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List everything you can buy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(cmd, func(_ context.Context, e *engine.Engine) error {
				renderCatalog(e.Game().Dashboard())
				return nil
			})
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write the game to storage now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGameNoSave(cmd, func(ctx context.Context, e *engine.Engine) error {
				rep := e.Save(ctx)
				if rep.LocalErr != nil {
					return rep.LocalErr
				}
				printSuccess(fmt.Sprintf("Saved (%d bytes, id %s).", rep.Bytes, rep.SaveID))
				if rep.Remote && rep.RemoteErr == nil {
					printInfo("Cloud copy updated.")
				}
				if o := e.Outbox(); o != nil {
					if n, err := o.Flush(ctx); n > 0 {
						printInfo(fmt.Sprintf("Delivered %d queued reports.", n))
					} else if err != nil {
						printWarn("Backend unreachable; reports stay queued.")
					}
				}
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := promptConfirm("This deletes all progress. Continue?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Reset cancelled.")
					return nil
				}
			}
			return withGameNoSave(cmd, func(ctx context.Context, e *engine.Engine) error {
				warnSave(e.Reset(ctx))
				printSuccess("Progress reset.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top players",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			rows, err := client.Leaderboard(ctx)
			if err != nil {
				printWarn("Leaderboard unavailable: " + err.Error())
				return nil
			}
			renderLeaderboard(rows)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show backend counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			stats, err := client.Stats(ctx)
			if err != nil {
				printWarn("Stats unavailable: " + err.Error())
				return nil
			}
			renderStats(stats)
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent backend request logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			lines, err := client.Logs(ctx)
			if err != nil {
				printWarn("Logs unavailable: " + err.Error())
				return nil
			}
			renderLogs(lines, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of lines to show")
	return cmd
}

func newECPMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ecpm",
		Short: "Show the eCPM history reported by ads",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			history, err := client.ECPMHistory(ctx)
			if err != nil {
				printWarn("eCPM history unavailable: " + err.Error())
				return nil
			}
			renderECPM(history)
			return nil
		},
	}
}

func backendClient() (*cl.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("TYCOON_API_BASE_URL is not set")
	}
	client := cl.NewClient(cfg.APIBaseURL)
	client.AnalyticsKey = cfg.AnalyticsKey
	return client, nil
}

func announceLevels(n int64) {
	if n > 0 {
		printSuccess(fmt.Sprintf("Level up! (+%d)", n))
	}
}

func track(ctx context.Context, e *engine.Engine, event map[string]any) {
	o := e.Outbox()
	if o == nil {
		return
	}
	event["player_id"] = e.Config().PlayerID
	event["at_ms"] = time.Now().UnixMilli()
	o.Track(ctx, event)
}
