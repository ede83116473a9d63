package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"canasta/internal/core"
	"canasta/internal/ingest"
	"canasta/internal/log"
	"canasta/internal/pricing"
)

// maxImportSize caps uploaded shopping-list files at 5 MiB.
const maxImportSize = 5 << 20

type lineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity,omitempty"`
	// Amount is a net unit price in mode "unit" (the default) or the gross
	// total paid for the line in mode "gross".
	Amount     string `json:"amount"`
	Mode       string `json:"mode,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

type previewRequest struct {
	Date            string        `json:"date"`
	DiscountPercent string        `json:"discount_percent,omitempty"`
	CSV             string        `json:"csv,omitempty"`
	Lines           []lineRequest `json:"lines,omitempty"`
}

type submitRequest struct {
	AccountID       string        `json:"account_id"`
	CategoryID      string        `json:"category_id"`
	Date            string        `json:"date"`
	Description     string        `json:"description,omitempty"`
	DiscountPercent string        `json:"discount_percent,omitempty"`
	CSV             string        `json:"csv,omitempty"`
	Lines           []lineRequest `json:"lines,omitempty"`
	// Resolutions override the per-line resolution by item id. Useful when
	// the lines came from a CSV body and carry no resolution of their own.
	Resolutions map[string]string `json:"resolutions,omitempty"`
}

type itemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TaxRate     string `json:"tax_rate"`
	Exempt      bool   `json:"exempt"`
	LatestPrice string `json:"latest_price"`
}

type referenceResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type previewLineResponse struct {
	ItemID        string  `json:"item_id"`
	ItemName      string  `json:"item_name"`
	Quantity      string  `json:"quantity"`
	Exempt        bool    `json:"exempt"`
	TaxRate       string  `json:"tax_rate"`
	UnitPriceNet  string  `json:"unit_price_net"`
	Subtotal      string  `json:"subtotal"`
	TaxAmount     string  `json:"tax_amount"`
	LineTotal     string  `json:"line_total"`
	ExistingPrice *string `json:"existing_price,omitempty"`
	Status        string  `json:"status"`
	Resolution    string  `json:"resolution,omitempty"`
}

type unmatchedLineResponse struct {
	RawID    string `json:"raw_id"`
	Name     string `json:"name,omitempty"`
	Quantity string `json:"quantity"`
	Amount   string `json:"amount"`
	Row      int    `json:"row"`
}

type totalsResponse struct {
	BeforeDiscount string `json:"before_discount"`
	AfterDiscount  string `json:"after_discount"`
}

type previewResponse struct {
	Date      string                  `json:"date"`
	Lines     []previewLineResponse   `json:"lines"`
	Unmatched []unmatchedLineResponse `json:"unmatched,omitempty"`
	Totals    totalsResponse          `json:"totals"`
}

type submitResponse struct {
	TransactionID string         `json:"transaction_id"`
	Totals        totalsResponse `json:"totals"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, ok := s.itemsCache.Get("all")
	if !ok {
		var err error
		items, err = s.store.ListItems(r.Context())
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list items", log.FieldError, err.Error())
			respondError(w, err)
			return
		}
		s.itemsCache.Set("all", items)
	}

	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			ID:          it.ID,
			Name:        it.Name,
			TaxRate:     it.TaxRate.String(),
			Exempt:      it.Exempt,
			LatestPrice: it.LatestPrice.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, ok := s.accountsCache.Get("all")
	if !ok {
		var err error
		accounts, err = s.store.ListAccounts(r.Context())
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list accounts", log.FieldError, err.Error())
			respondError(w, err)
			return
		}
		s.accountsCache.Set("all", accounts)
	}

	out := make([]referenceResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, referenceResponse{ID: a.ID, Name: a.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, ok := s.categoriesCache.Get("all")
	if !ok {
		var err error
		categories, err = s.store.ListCategories(r.Context())
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list categories", log.FieldError, err.Error())
			respondError(w, err)
			return
		}
		s.categoriesCache.Set("all", categories)
	}

	out := make([]referenceResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, referenceResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

type itemPriceResponse struct {
	ItemID string `json:"item_id"`
	Price  string `json:"price"`
}

// handlePricesByDate returns the recorded price per item id for one date.
// Items with no recorded price on that date are absent from the result.
func (s *Server) handlePricesByDate(w http.ResponseWriter, r *http.Request) {
	date, err := core.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, err)
		return
	}

	raw := r.URL.Query().Get("item_ids")
	if raw == "" {
		raw = r.URL.Query().Get("ids")
	}
	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "item_ids query parameter is required")
		return
	}

	prices, err := s.store.PricesOn(r.Context(), ids, date)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load prices", log.FieldError, err.Error())
		respondError(w, err)
		return
	}

	// Preserve the requested order; absent ids are simply skipped.
	out := make([]itemPriceResponse, 0, len(prices))
	for _, id := range ids {
		if p, ok := prices[id]; ok {
			out = append(out, itemPriceResponse{ItemID: id, Price: p.String()})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	discount, err := parseDiscount(req.DiscountPercent)
	if err != nil {
		respondError(w, err)
		return
	}

	lines, err := s.inputLines(r, req.CSV, req.Lines)
	if err != nil {
		respondError(w, err)
		return
	}

	preview, err := s.svc.Preview(r.Context(), lines, date, discount)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(preview))
}

// handleSubmit re-prices the submitted lines server side, applies the
// client's resolutions and persists. Client-supplied amounts are input, never
// trusted totals.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	meta, err := s.submissionMeta(req)
	if err != nil {
		respondError(w, err)
		return
	}

	lines, err := s.inputLines(r, req.CSV, req.Lines)
	if err != nil {
		respondError(w, err)
		return
	}

	preview, err := s.svc.Preview(r.Context(), lines, meta.Date, meta.Discount)
	if err != nil {
		respondError(w, err)
		return
	}

	applyResolutions(req, preview.Lines)

	id, err := s.svc.Submit(r.Context(), meta, preview.Lines)
	if err != nil {
		respondError(w, err)
		return
	}

	// Price writes change latest_price; the cached catalog is stale now.
	s.itemsCache.Delete("all")

	writeJSON(w, http.StatusCreated, submitResponse{
		TransactionID: id,
		Totals:        toTotalsResponse(core.Aggregate(preview.Lines, meta.Discount)),
	})
}

// handleImport accepts a multipart upload (field "file", CSV or XLSX by
// extension) plus transaction metadata fields and runs the one-shot import.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	meta, err := s.submissionMeta(submitRequest{
		AccountID:       r.FormValue("account_id"),
		CategoryID:      r.FormValue("category_id"),
		Date:            r.FormValue("date"),
		Description:     r.FormValue("description"),
		DiscountPercent: r.FormValue("discount_percent"),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	catalog, err := s.svc.Catalog(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	var lines []core.InputLine
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		lines, err = ingest.ParseXLSX(file, catalog)
	} else {
		var buf strings.Builder
		if _, copyErr := io.Copy(&buf, file); copyErr != nil {
			writeError(w, http.StatusBadRequest, "failed to read uploaded file")
			return
		}
		lines, err = ingest.ParseCSV(buf.String(), catalog)
	}
	if err != nil {
		respondError(w, err)
		return
	}

	id, preview, err := s.svc.Import(r.Context(), lines, meta)
	if err != nil {
		respondError(w, err)
		return
	}

	s.itemsCache.Delete("all")

	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id": id,
		"preview":        toPreviewResponse(preview),
	})
}

// submissionMeta parses and validates the metadata shared by submit and
// import. Date and discount problems are collected together so a bad request
// reports everything at once.
func (s *Server) submissionMeta(req submitRequest) (core.SubmissionMeta, error) {
	var problems []string

	date, err := core.ParseDate(req.Date)
	if err != nil {
		problems = append(problems, err.Error())
	}
	discount, err := parseDiscount(req.DiscountPercent)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return core.SubmissionMeta{}, &core.ValidationError{Problems: problems}
	}
	return core.SubmissionMeta{
		AccountID:   strings.TrimSpace(req.AccountID),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Date:        date,
		Description: strings.TrimSpace(req.Description),
		Discount:    discount,
	}, nil
}

// inputLines turns the request body into parser output: either the CSV text
// or the structured lines, resolved against the current catalog.
func (s *Server) inputLines(r *http.Request, csv string, lines []lineRequest) ([]core.InputLine, error) {
	catalog, err := s.svc.Catalog(r.Context())
	if err != nil {
		return nil, err
	}

	if csv != "" {
		if len(lines) > 0 {
			return nil, &core.ValidationError{Problems: []string{"provide either csv or lines, not both"}}
		}
		return ingest.ParseCSV(csv, catalog)
	}
	if len(lines) == 0 {
		return nil, &core.ValidationError{Problems: []string{"no lines provided"}}
	}
	return buildInputLines(lines, catalog)
}

// buildInputLines converts structured request lines. All problems are
// collected before failing so the client sees every bad line.
func buildInputLines(reqs []lineRequest, catalog ingest.Catalog) ([]core.InputLine, error) {
	var problems []string
	out := make([]core.InputLine, 0, len(reqs))

	for i, lr := range reqs {
		row := i + 1

		quantity := decimal.NewFromInt(1)
		if lr.Quantity != "" {
			q, err := decimal.NewFromString(lr.Quantity)
			if err != nil || !q.IsPositive() {
				problems = append(problems, fmt.Sprintf("line %d: invalid quantity %q", row, lr.Quantity))
				continue
			}
			quantity = q
		}

		amount, err := decimal.NewFromString(lr.Amount)
		if err != nil || amount.IsNegative() {
			problems = append(problems, fmt.Sprintf("line %d: invalid amount %q", row, lr.Amount))
			continue
		}

		mode := core.PriceModeUnit
		switch lr.Mode {
		case "", string(core.PriceModeUnit):
		case string(core.PriceModeGross):
			mode = core.PriceModeGross
		default:
			problems = append(problems, fmt.Sprintf("line %d: unknown mode %q", row, lr.Mode))
			continue
		}

		item, ok := catalog.ItemByID(strings.TrimSpace(lr.ItemID))
		if !ok {
			out = append(out, core.UnmatchedLine{
				RawID:    strings.TrimSpace(lr.ItemID),
				Quantity: quantity,
				Amount:   amount,
				RowNum:   row,
			})
			continue
		}
		out = append(out, core.MatchedLine{
			Item:     item,
			Quantity: quantity,
			Mode:     mode,
			Amount:   amount,
			RowNum:   row,
		})
	}

	if len(problems) > 0 {
		return nil, &core.ValidationError{Problems: problems}
	}
	return out, nil
}

// applyResolutions overrides preview resolutions with the client's choices.
// Per-line resolutions are matched positionally within each item, so repeated
// lines for the same item can resolve differently. The item-keyed Resolutions
// overrides win and apply to every line of that item.
func applyResolutions(req submitRequest, lines []core.PreviewLine) {
	queues := make(map[string][]core.Resolution, len(req.Lines))
	for _, lr := range req.Lines {
		id := strings.TrimSpace(lr.ItemID)
		queues[id] = append(queues[id], core.Resolution(lr.Resolution))
	}

	// Preview lines keep the submitted order, so consuming one queue entry
	// per line of the same item realigns them. Unset entries leave the
	// default in place.
	for i := range lines {
		id := lines[i].ItemID
		q := queues[id]
		if len(q) == 0 {
			continue
		}
		queues[id] = q[1:]
		if q[0] != core.ResolutionUnset {
			lines[i].Resolution = q[0]
		}
	}

	for id, res := range req.Resolutions {
		id = strings.TrimSpace(id)
		for i := range lines {
			if lines[i].ItemID == id {
				lines[i].Resolution = core.Resolution(res)
			}
		}
	}
}

func parseDiscount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Problems: []string{fmt.Sprintf("invalid discount %q", s)}}
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, &core.ValidationError{Problems: []string{core.ErrInvalidDiscount.Error()}}
	}
	return d, nil
}

// Amounts are rounded to two decimals at the edge only; internal math never
// rounds.
func toPreviewResponse(p pricing.Preview) previewResponse {
	lines := make([]previewLineResponse, 0, len(p.Lines))
	for _, l := range p.Lines {
		resp := previewLineResponse{
			ItemID:       l.ItemID,
			ItemName:     l.ItemName,
			Quantity:     l.Quantity.String(),
			Exempt:       l.Exempt,
			TaxRate:      l.TaxRate.String(),
			UnitPriceNet: l.UnitPriceNet.StringFixed(2),
			Subtotal:     l.Subtotal.StringFixed(2),
			TaxAmount:    l.TaxAmount.StringFixed(2),
			LineTotal:    l.LineTotal.StringFixed(2),
			Status:       string(l.Status),
			Resolution:   string(l.Resolution),
		}
		if l.ExistingPrice != nil {
			existing := l.ExistingPrice.StringFixed(2)
			resp.ExistingPrice = &existing
		}
		lines = append(lines, resp)
	}

	unmatched := make([]unmatchedLineResponse, 0, len(p.Unmatched))
	for _, u := range p.Unmatched {
		unmatched = append(unmatched, unmatchedLineResponse{
			RawID:    u.RawID,
			Name:     u.Name,
			Quantity: u.Quantity.String(),
			Amount:   u.Amount.StringFixed(2),
			Row:      u.RowNum,
		})
	}

	return previewResponse{
		Date:      p.Date.String(),
		Lines:     lines,
		Unmatched: unmatched,
		Totals:    toTotalsResponse(p.Totals),
	}
}

func toTotalsResponse(t core.Totals) totalsResponse {
	return totalsResponse{
		BeforeDiscount: t.BeforeDiscount.StringFixed(2),
		AfterDiscount:  t.AfterDiscount.StringFixed(2),
	}
}
