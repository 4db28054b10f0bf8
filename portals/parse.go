package portals

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/models"
)

// PageResult is everything extracted from one rendered result page.
// Misaligned is set when the field columns disagreed in length and the
// records were truncated; the claims are still usable.
type PageResult struct {
	Claims       []models.ClaimRecord
	TotalResults int
	TotalPages   int
	Misaligned   *common.MisalignmentError
}

// The supported portals share a result-grid template: each cell carries a
// headers attribute naming its column and wraps the value in an uppercase
// span. These anchors are the contract the parser keys on.
const (
	colOwnerName  = "propownerName"
	colHolderName = "propholderName"
	colAddress    = "propaddress"
	colCity       = "propcity"
	colState      = "propstate"
	colZip        = "propzip"
)

func fieldPattern(header string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?is)headers="` + header + `"[^>]*>.*?<span[^>]*class="[^"]*text-uppercase[^"]*"[^>]*>\s*([^<]+?)\s*</span>`)
}

var (
	fieldPatterns = map[string]*regexp.Regexp{
		colOwnerName:  fieldPattern(colOwnerName),
		colHolderName: fieldPattern(colHolderName),
		colAddress:    fieldPattern(colAddress),
		colCity:       fieldPattern(colCity),
		colState:      fieldPattern(colState),
		colZip:        fieldPattern(colZip),
	}

	// amountPattern matches both numeric amounts and the "UNDER $100"
	// placeholder some portals show for small properties.
	amountPattern = regexp.MustCompile(`(UNDER \$100|\$[\d,]+(?:\.\d{2})?)`)

	returnedCountPattern = regexp.MustCompile(`(?i)returned\s+(\d+)\s+unclaimed`)
	resultCountPattern   = regexp.MustCompile(`(?i)(\d+)\s+(?:total\s+)?(?:results?|records?|items?|properties?|claims?)\s*(?:found)?`)
	pageLabelPattern     = regexp.MustCompile(`(?i)aria-label=["']Page\s+(\d+)["']`)
)

// headerAmountCount is how many amount-shaped strings the page template
// emits before the first data row (range filter labels and legend).
const headerAmountCount = 4

// ParsePage extracts claim records and pagination info from rendered
// portal HTML. It never fails outright on malformed markup; an
// unparseable page just yields zero claims.
func ParsePage(html, stateCode string) (*PageResult, error) {
	columns := extractColumns(html)
	amounts := extractAmounts(html)

	names := columns[colOwnerName]
	rowCount := len(names)

	result := &PageResult{}
	result.TotalResults, result.TotalPages = extractPagination(html)

	if rowCount == 0 {
		return result, nil
	}

	// Columns are extracted independently, so a markup variation in one
	// cell type shortens only that list. Rows past the shortest populated
	// column cannot be trusted to line up.
	populated := lo.Filter(lo.Values(columns), func(c []string, _ int) bool {
		return len(c) > 0
	})
	lengths := lo.Map(populated, func(c []string, _ int) int { return len(c) })
	shortest := lo.Min(lengths)
	longest := lo.Max(lengths)

	if shortest < longest {
		result.Misaligned = &common.MisalignmentError{
			StateCode: stateCode,
			Shortest:  shortest,
			Longest:   longest,
		}
		rowCount = shortest
	}

	for i := 0; i < rowCount; i++ {
		amountText := ""
		if i < len(amounts) {
			amountText = amounts[i]
		}

		result.Claims = append(result.Claims, models.ClaimRecord{
			OwnerName:    names[i],
			HolderName:   column(columns, colHolderName, i, ""),
			OwnerAddress: column(columns, colAddress, i, ""),
			OwnerCity:    column(columns, colCity, i, ""),
			OwnerState:   column(columns, colState, i, stateCode),
			OwnerZip:     column(columns, colZip, i, ""),
			PropertyType: "Unknown",
			Amount:       ParseAmount(amountText),
			AmountText:   amountText,
			StateCode:    stateCode,
		})
	}

	return result, nil
}

func column(columns map[string][]string, header string, i int, fallback string) string {
	values := columns[header]
	if i >= len(values) {
		return fallback
	}
	return values[i]
}

// extractColumns pulls each field column out of the result grid. DOM
// traversal is the primary strategy; when the document does not yield a
// single owner name, the raw-text patterns take over since partial or
// truncated HTML still carries the cell anchors.
func extractColumns(html string) map[string][]string {
	columns := map[string][]string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		for header := range fieldPatterns {
			selector := fmt.Sprintf("[headers='%s'] span.text-uppercase", header)
			doc.Find(selector).Each(func(_ int, cell *goquery.Selection) {
				columns[header] = append(columns[header], strings.TrimSpace(cell.Text()))
			})
		}
	}

	if len(columns[colOwnerName]) > 0 {
		return columns
	}

	for header, pattern := range fieldPatterns {
		columns[header] = nil
		for _, match := range pattern.FindAllStringSubmatch(html, -1) {
			columns[header] = append(columns[header], strings.TrimSpace(match[1]))
		}
	}
	return columns
}

// extractAmounts scans the whole page for amount-shaped strings and drops
// the leading template matches, leaving one amount per data row in grid
// order.
func extractAmounts(html string) []string {
	matches := amountPattern.FindAllString(html, -1)
	if len(matches) <= headerAmountCount {
		return nil
	}
	return matches[headerAmountCount:]
}

// ParseAmount converts a portal amount string to a numeric value. The
// "UNDER $100" placeholder and anything unparseable map to nil; the
// verbatim text is preserved separately on the record.
func ParseAmount(text string) *float64 {
	if text == "" || strings.Contains(text, "UNDER") {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(text)
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}

// extractPagination derives the total result and page counts. Portals
// phrase their counts differently, so the strategies run in order of
// trustworthiness: an explicit "returned N unclaimed" banner, then a
// generic "N results" phrase, then the highest numbered pager link.
func extractPagination(html string) (totalResults, totalPages int) {
	if match := returnedCountPattern.FindStringSubmatch(html); match != nil {
		total, _ := strconv.Atoi(match[1])
		return total, pagesFor(total)
	}

	if match := resultCountPattern.FindStringSubmatch(html); match != nil {
		total, _ := strconv.Atoi(match[1])
		return total, pagesFor(total)
	}

	maxPage := 0
	for _, match := range pageLabelPattern.FindAllStringSubmatch(html, -1) {
		page, _ := strconv.Atoi(match[1])
		if page > maxPage {
			maxPage = page
		}
	}
	if maxPage > 0 {
		return maxPage * constants.ResultsPerPage, maxPage
	}

	return 0, 1
}

func pagesFor(totalResults int) int {
	pages := (totalResults + constants.ResultsPerPage - 1) / constants.ResultsPerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}
