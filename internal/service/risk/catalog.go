package risk

import "sort"

const defaultWinRate = 0.75

type Setup struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	WinRate float64 `json:"win_rate"`
}

// Catalog is an immutable set of setups keyed by id.
type Catalog struct {
	byID map[int]Setup
	ids  []int
}

func NewCatalog(setups ...Setup) Catalog {
	c := Catalog{byID: make(map[int]Setup, len(setups))}
	for _, s := range setups {
		if _, dup := c.byID[s.ID]; !dup {
			c.ids = append(c.ids, s.ID)
		}
		c.byID[s.ID] = s
	}
	sort.Ints(c.ids)
	return c
}

// DefaultCatalog returns the sixteen strategy setups with their historical
// win rates.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Setup{ID: 1, WinRate: 0.85, Name: "NAS100 — AMD + 8H FVG"},
		Setup{ID: 2, WinRate: 0.87, Name: "NAS100 — AMD + Weekly FVG 0.786"},
		Setup{ID: 3, WinRate: 0.68, Name: "NAS100 — 12H FVG + 4H bFVGc"},
		Setup{ID: 4, WinRate: 0.71, Name: "SP500 + NAS100 — 1D FVG correlation"},
		Setup{ID: 5, WinRate: 0.72, Name: "SP500 — 12H FVG + VIX > 20"},
		Setup{ID: 6, WinRate: 0.87, Name: "US30 — 8H FVG + VIX > 20"},
		Setup{ID: 7, WinRate: 0.70, Name: "GER40 — 12H FVG sweep + 1H FVG"},
		Setup{ID: 8, WinRate: 0.70, Name: "GER40 — 12H FVG + 90m FVG + 2H bFVGc"},
		Setup{ID: 9, WinRate: 0.81, Name: "UK100 — 12H FVG + 2H bFVGc"},
		Setup{ID: 10, WinRate: 0.59, Name: "JPY100 — 1D FVG + 4H sweep"},
		Setup{ID: 11, WinRate: 0.77, Name: "XAU — VIX + GVZ correlation"},
		Setup{ID: 12, WinRate: 0.71, Name: "XAU — 12H FVG sweep + 15m"},
		Setup{ID: 13, WinRate: 0.85, Name: "XAG — 1D FVG + AMD + Fib 0.5"},
		Setup{ID: 14, WinRate: 0.72, Name: "EURUSD — 1D FVG + DXY (long)"},
		Setup{ID: 15, WinRate: 0.71, Name: "EURUSD — 1D FVG + DXY (short)"},
		Setup{ID: 16, WinRate: 0.82, Name: "USDCAD — 8H block + 4H confirmation"},
	)
}

// Lookup returns the setup for id. Unknown ids resolve to an unnamed setup
// with the default win rate.
func (c Catalog) Lookup(id int) (Setup, bool) {
	s, ok := c.byID[id]
	if !ok {
		return Setup{ID: id, WinRate: defaultWinRate}, false
	}
	return s, true
}

func (c Catalog) Contains(id int) bool {
	_, ok := c.byID[id]
	return ok
}

// Setups lists the catalog ordered by id.
func (c Catalog) Setups() []Setup {
	out := make([]Setup, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}

func (c Catalog) Len() int { return len(c.ids) }
