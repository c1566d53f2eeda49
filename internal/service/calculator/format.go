package calculator

import (
	"fmt"
	"html"
	"strings"

	"strategybot/internal/service/risk"
)

const rule = "──────────────────────────────"

// FormatResult renders a calculation as an HTML Telegram message.
func FormatResult(r risk.Result) string {
	var b strings.Builder

	status := "🟢 Normal"
	if r.RecoveryMode {
		status = "🔴 RECOVERY"
	}

	b.WriteString("📊 <b>Strategy risk calculation</b>\n")
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("💰 Balance: $%.0f → %.2f%% of deposit\n", r.Input.Balance, r.BalancePct))
	b.WriteString(fmt.Sprintf("📋 Phase: %s | %s\n", html.EscapeString(r.Input.Phase.Label()), status))
	b.WriteString(fmt.Sprintf("🎯 Setup #%d: %s\n", r.Setup.ID, html.EscapeString(r.Setup.Name)))
	b.WriteString(fmt.Sprintf("📡 Volatility: %s\n", html.EscapeString(r.Input.Volatility.Label())))
	b.WriteString(rule + "\n")
	b.WriteString("⚙️ <b>Coefficients:</b>\n")
	b.WriteString(fmt.Sprintf("  R (base): %.2f%% | W (win rate): %.0f%%\n", r.BaseRisk, r.WinRate*100))
	b.WriteString(fmt.Sprintf("  D (drawdown): %.3f | W adj: %.4f | R adapt: %.4f\n", r.Drawdown, r.AdjustedWinRate, r.AdaptationFactor))
	b.WriteString(fmt.Sprintf("  k-buffer: %g | k-cycle: %g | RR target: %.2f\n", r.BufferFactor, r.CycleFactor, r.RewardRisk))
	if r.ProfitBonus > 0 {
		b.WriteString(fmt.Sprintf("  Profit bonus: +%.2f%%\n", r.ProfitBonus))
	}
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("✅ <b>Final risk: %.2f%% = $%.2f</b>\n", r.RiskPct, r.RiskUSD))
	b.WriteString(fmt.Sprintf("🚪 Entries: <b>%d</b>\n", r.EntryCount))
	b.WriteString(rule + "\n")
	b.WriteString("📐 <b>Distribution:</b>\n")
	b.WriteString(formatEntries(r.Entries))
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("📌 Profit fixing: %s\n", r.FixRule))
	b.WriteString(fmt.Sprintf("🔄 Trades to recover: %s", r.Recovery))
	return b.String()
}

func formatEntries(entries []risk.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s: $%s", e.Label, e.Amount.StringFixed(2))
		if e.Unused {
			line += " (not used)"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
