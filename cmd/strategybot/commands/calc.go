package commands

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"

	"github.com/spf13/cobra"

	"strategybot/internal/service/calculator"
	"strategybot/internal/service/risk"
)

var htmlTag = regexp.MustCompile(`<[^>]+>`)

type calcOptions struct {
	balance    float64
	deposit    float64
	phase      string
	setup      int
	volatility string
	confidence float64
	day        int
	prevProfit float64
	growth     float64
	efficiency float64
	asJSON     bool
}

func newCalcCmd() *cobra.Command {
	opts := &calcOptions{}
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Run the risk calculator once and print the result",
		Example: `  strategybot calc --balance 48500 --deposit 50000 --phase funded --setup 1
  strategybot calc --balance 51200 --deposit 50000 --phase 1ph --setup 4 --volatility impulse --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := risk.ParsePhase(opts.phase)
			if err != nil {
				return err
			}
			vol, err := risk.ParseVolatility(opts.volatility)
			if err != nil {
				return err
			}

			engine := risk.NewEngine(risk.DefaultCatalog())
			result, err := engine.Calculate(risk.Input{
				Balance:           opts.balance,
				InitialDeposit:    opts.deposit,
				Phase:             phase,
				SetupID:           opts.setup,
				Volatility:        vol,
				Confidence:        opts.confidence,
				CycleDay:          opts.day,
				PreviousProfit:    opts.prevProfit,
				GrowthCoefficient: opts.growth,
				Efficiency:        opts.efficiency,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			_, err = fmt.Fprintln(out, plainText(calculator.FormatResult(result)))
			return err
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.balance, "balance", 0, "current balance in USD")
	f.Float64Var(&opts.deposit, "deposit", 0, "initial deposit in USD")
	f.StringVar(&opts.phase, "phase", "funded", "challenge|verification|funded (or 1ph/2ph)")
	f.IntVar(&opts.setup, "setup", 1, "setup number")
	f.StringVar(&opts.volatility, "volatility", "normal", "shock|flat|normal|impulse")
	f.Float64Var(&opts.confidence, "confidence", 1.0, "confidence multiplier")
	f.IntVar(&opts.day, "day", 1, "day of the trading cycle")
	f.Float64Var(&opts.prevProfit, "prev-profit", 0, "profit of the previous trade in USD")
	f.Float64Var(&opts.growth, "growth", 0, "growth coefficient (0 means 1.0)")
	f.Float64Var(&opts.efficiency, "efficiency", 0, "win/loss efficiency (0 means 1.0)")
	f.BoolVar(&opts.asJSON, "json", false, "print the raw result as JSON")
	_ = cmd.MarkFlagRequired("balance")
	_ = cmd.MarkFlagRequired("deposit")
	return cmd
}

// plainText turns a Telegram HTML message into terminal text.
func plainText(s string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(s, ""))
}
