package instrument

import (
	"regexp"
	"strconv"
	"strings"
)

// occPattern matches OCC-style option symbols with the padding already
// stripped: underlying, yymmdd, right, strike in thousandths.
var occPattern = regexp.MustCompile(`^([A-Z.]{1,6})(\d{6})([CP])(\d{8})$`)

// FromSymbol maps a user-entered symbol to an unqualified contract of
// the right class: "/ES" style prefixes name futures, OCC-formatted
// symbols name options, and everything else is an equity. The gateway
// fills in identity and metadata during qualification.
func FromSymbol(sym, exchange, currency string) Contract {
	sym = strings.ToUpper(strings.TrimSpace(sym))

	if strings.HasPrefix(sym, "/") {
		return Contract{
			Symbol:   strings.TrimPrefix(sym, "/"),
			SecType:  SecTypeFuture,
			Exchange: exchange,
			Currency: currency,
		}
	}

	compact := strings.ReplaceAll(sym, " ", "")
	if m := occPattern.FindStringSubmatch(compact); m != nil {
		strikeThousandths, _ := strconv.ParseInt(m[4], 10, 64)
		return Contract{
			Symbol:        m[1],
			LocalSymbol:   compact,
			SecType:       SecTypeOption,
			Exchange:      exchange,
			Currency:      currency,
			LastTradeDate: "20" + m[2],
			Right:         m[3],
			Strike:        float64(strikeThousandths) / 1000,
		}
	}

	return Contract{
		Symbol:   sym,
		SecType:  SecTypeEquity,
		Exchange: exchange,
		Currency: currency,
	}
}
