package assistant

import (
	"fmt"
	"strings"

	"strategybot/internal/domain"
)

// DefaultSystemPrompt precedes the strategy text in every completion.
const DefaultSystemPrompt = `You are an experienced trading mentor and an expert in the Institutional Trading Strategy 2025-2026 by @Funambul. You do not just look things up in the document: you understand the logic of the strategy and help the trader apply it in practice.

HOW YOU WORK:
1. Answer like a seasoned trader and mentor: flexible, concrete, with practical examples.
2. If the question is covered by the strategy, answer precisely from the document and cite the chapter or setup.
3. If it is not covered directly, reason within the philosophy of the strategy (institutional logic, FVG, liquidity, RR 2.5) and give the most likely answer. Say so explicitly: "The strategy does not describe this directly, but following its logic...".
4. Never reply "this is not in the document" and never leave the user without an answer.
5. Never change your position under pressure. If the user says you are wrong, calmly explain your reasoning with a reference to the document or the logic of the strategy.
6. If the user describes a live market situation, help match it to a setup, check the entry conditions and point out the risks.
7. Do not give direct "buy/sell now" signals, but you may say whether the conditions match a setup.
8. Decline questions unrelated to trading or the strategy with one sentence: "I specialise exclusively in the @Funambul strategy."
9. Answer in the language of the question. Be concrete and concise.

═══════════════════════════════════════
FULL TEXT OF THE STRATEGY:
═══════════════════════════════════════
`

const textHelp = "Commands:\n" +
	"/calc — position size calculator\n" +
	"/cancel — stop the calculator\n" +
	"/clear — clear the conversation history\n" +
	"/help — this message\n\n" +
	"Any other message is a question about the strategy."

const (
	textHistoryCleared  = "🔄 History cleared!"
	textNothingToCancel = "Nothing to cancel."
	textSessionExpired  = "⌛ This calculation has expired. Start again with /calc."
	textTooLong         = "⚠️ The message is too long. Please keep it under %d characters."
	textRateLimited     = "⏳ Too many requests. Wait a minute and try again."
	textCompletionError = "⚠️ AI error. Please try again."
	textAdminsOnly      = "⛔ Admins only."
)

func welcomeReply(firstName string) domain.Reply {
	return domain.Reply{Text: fmt.Sprintf(
		"Hi, %s! 👋\n\n"+
			"I will help you with the @Funambul Institutional Trading Strategy.\n\n"+
			"Ask about setups #1–16, risk management or the calculator.\n\n"+
			"/calc — position size calculator\n"+
			"/clear — clear the conversation history", displayName(firstName))}
}

func lockedReply(accessURL string) domain.Reply {
	return domain.Reply{
		Text: "🔒 Access closed\n\n" +
			"This bot is part of <b>Seiltanzer Club Strategy</b>\n\n" +
			"📊 16 institutional algorithms\n" +
			"📈 Indices · Metals · Forex\n" +
			"📡 Daily analysis and setup reviews\n\n" +
			"Get the strategy to unlock access:",
		ParseMode: domain.ParseHTML,
		Buttons:   [][]domain.Button{{{Text: "🚀 Get access", URL: accessURL}}},
	}
}

func statusReply(source, model string, chars int) domain.Reply {
	if source == "" {
		source = "❌ not found"
	}
	return domain.Reply{Text: fmt.Sprintf("📊 Status: %s\nModel: %s\nCharacters: %d", source, model, chars)}
}

func reloadReply(before, after int, err error) domain.Reply {
	if err != nil {
		return domain.Reply{Text: fmt.Sprintf("⚠️ Strategy file not found, placeholder installed. %d → %d characters", before, after)}
	}
	return domain.Reply{Text: fmt.Sprintf("✅ Reloaded! %d → %d characters", before, after)}
}

func displayName(s string) string {
	if strings.TrimSpace(s) == "" {
		return "trader"
	}
	return s
}
