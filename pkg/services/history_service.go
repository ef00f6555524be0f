package services

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"vendite-chat-api/pkg/models"
)

// HistoricalRecord is a single row of the historical predictions table.
type HistoricalRecord struct {
	Product      string
	ProductName  string
	Customer     string
	CustomerName string
	Period       models.Period
	PredictedKg  float64
	ActualKg     float64
	HasActual    bool
	Confidence   float64
}

// Quantity returns the consolidated quantity for the row: the actual
// shipped amount when recorded, otherwise the stored prediction.
func (r *HistoricalRecord) Quantity() float64 {
	if r.HasActual {
		return r.ActualKg
	}
	return r.PredictedKg
}

// HistoryService loads the historical predictions table from CSV or XLSX files.
// It supports flexible Italian/English headers and caches parsed rows.
// The table is read-only: rows are parsed once and never mutated afterwards.
type HistoryService struct {
	mu      sync.RWMutex
	path    string
	records map[string]HistoricalRecord
	names   map[string]string // product code -> display name
	loaded  bool
}

// NewHistoryService creates a new HistoryService for the given table file.
func NewHistoryService(path string) *HistoryService {
	return &HistoryService{
		path:    path,
		records: make(map[string]HistoricalRecord),
		names:   make(map[string]string),
	}
}

// Lookup returns the row for the exact product/customer/period combination.
// A load failure is reported as an error with found=false so callers can
// fall back to the regression model.
func (s *HistoryService) Lookup(product, customer string, period models.Period) (HistoricalRecord, bool, error) {
	records, err := s.getOrLoad()
	if err != nil {
		return HistoricalRecord{}, false, err
	}

	rec, ok := records[historyKey(product, customer, period)]
	return rec, ok, nil
}

// QuantityAt returns the consolidated quantity for the exact combination,
// preferring recorded actuals over stored predictions. It reports false
// when no row exists or the table cannot be read.
func (s *HistoryService) QuantityAt(product, customer string, period models.Period) (float64, bool) {
	records, err := s.getOrLoad()
	if err != nil {
		return 0, false
	}

	rec, ok := records[historyKey(product, customer, period)]
	if !ok {
		return 0, false
	}
	return rec.Quantity(), true
}

// ProductName returns the display name recorded for a product code, if any.
func (s *HistoryService) ProductName(product string) string {
	if _, err := s.getOrLoad(); err != nil {
		return ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[normalizeCode(product)]
}

// Count returns the number of rows in the table.
func (s *HistoryService) Count() (int, error) {
	records, err := s.getOrLoad()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Products returns the distinct product codes present in the table, sorted.
func (s *HistoryService) Products() ([]string, error) {
	records, err := s.getOrLoad()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, rec := range records {
		seen[rec.Product] = true
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Reload discards the cached table so the next access re-reads the file.
func (s *HistoryService) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.records = make(map[string]HistoricalRecord)
	s.names = make(map[string]string)
}

// getOrLoad returns the cached table or loads it from disk.
func (s *HistoryService) getOrLoad() (map[string]HistoricalRecord, error) {
	s.mu.RLock()
	if s.loaded {
		records := s.records
		s.mu.RUnlock()
		return records, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded { // double-check
		return s.records, nil
	}

	records, names, err := s.loadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load historical table from %s: %w", s.path, err)
	}

	s.records = records
	s.names = names
	s.loaded = true
	return s.records, nil
}

// loadFile dispatches on the file extension: XLSX sheets are read through
// excelize, everything else is treated as CSV.
func (s *HistoryService) loadFile(path string) (map[string]HistoricalRecord, map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return s.loadXLSX(path)
	default:
		return s.loadCSV(path)
	}
}

// loadCSV parses a CSV file. Both comma and semicolon separated files are
// accepted; the delimiter is sniffed from the header line.
func (s *HistoryService) loadCSV(path string) (map[string]HistoricalRecord, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	headerLine, err := br.Peek(4096)
	if err != nil && len(headerLine) == 0 {
		return nil, nil, errors.New("csv: empty file")
	}

	firstLine := string(headerLine)
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		r.Comma = ';'
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return s.parseRows(rows)
}

// loadXLSX reads the first sheet of an Excel workbook.
func (s *HistoryService) loadXLSX(path string) (map[string]HistoricalRecord, map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("xlsx: no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	return s.parseRows(rows)
}

// parseRows builds the lookup index from raw table rows.
// Supported headers (case-insensitive): Articolo/Prodotto, Descrizione,
// Cliente, Anno, Mese, Kg Previsti/Predizione, Kg Effettivi/Consuntivo.
func (s *HistoryService) parseRows(rows [][]string) (map[string]HistoricalRecord, map[string]string, error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("table: no data")
	}

	// Tipo_Periodo, Data_Predizione and Modello are carried in the file but not used here.
	header := normalizeHeader(rows[0])
	productIdx := findIndex(header, []string{"prodotto", "articolo", "codice articolo", "product"})
	if productIdx == -1 {
		return nil, nil, errors.New("table: product column (Prodotto/Articolo) not found")
	}
	nameIdx := findIndex(header, []string{"descrizione_prodotto", "descrizione articolo", "descrizione", "nome prodotto"})
	customerIdx := findIndex(header, []string{"cliente", "codice cliente", "customer"})
	customerNameIdx := findIndex(header, []string{"descrizione_cliente", "nome cliente"})
	yearIdx := findIndex(header, []string{"esercizio", "anno", "year"})
	if yearIdx == -1 {
		return nil, nil, errors.New("table: year column (Esercizio/Anno) not found")
	}
	monthIdx := findIndex(header, []string{"periodo", "mese", "month"})
	if monthIdx == -1 {
		return nil, nil, errors.New("table: month column (Periodo/Mese) not found")
	}
	predictedIdx := findIndex(header, []string{"kg_venduti_predetti", "kg previsti", "predizione (kg)", "predizione", "quantita prevista", "quantità prevista", "predicted_kg"})
	if predictedIdx == -1 {
		return nil, nil, errors.New("table: predicted quantity column (Kg_Venduti_Predetti) not found")
	}
	actualIdx := findIndex(header, []string{"kg_venduti_reali", "kg effettivi", "consuntivo (kg)", "consuntivo", "actual_kg"})
	confidenceIdx := findIndex(header, []string{"confidenza", "confidence"})

	records := make(map[string]HistoricalRecord)
	names := make(map[string]string)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= productIdx || len(row) <= yearIdx || len(row) <= monthIdx || len(row) <= predictedIdx {
			continue
		}

		product := normalizeCode(row[productIdx])
		if product == "" {
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(row[yearIdx]))
		if err != nil {
			continue
		}
		month, err := strconv.Atoi(strings.TrimSpace(row[monthIdx]))
		if err != nil || month < 1 || month > 12 {
			continue
		}

		predicted, ok := parseQuantity(row[predictedIdx])
		if !ok || predicted < 0 {
			continue
		}

		rec := HistoricalRecord{
			Product:     product,
			Period:      models.Period{Month: month, Year: year},
			PredictedKg: predicted,
			Confidence:  1.0,
		}
		if nameIdx != -1 && len(row) > nameIdx {
			rec.ProductName = strings.TrimSpace(row[nameIdx])
		}
		if customerIdx != -1 && len(row) > customerIdx {
			rec.Customer = normalizeCode(row[customerIdx])
		}
		if customerNameIdx != -1 && len(row) > customerNameIdx {
			rec.CustomerName = strings.TrimSpace(row[customerNameIdx])
		}
		if actualIdx != -1 && len(row) > actualIdx {
			if actual, ok := parseQuantity(row[actualIdx]); ok && actual >= 0 {
				rec.ActualKg = actual
				rec.HasActual = true
			}
		}
		if confidenceIdx != -1 && len(row) > confidenceIdx {
			if conf, ok := parseQuantity(row[confidenceIdx]); ok && conf >= 0 && conf <= 1 {
				rec.Confidence = conf
			}
		}

		// duplicate combinations: last row wins
		records[historyKey(rec.Product, rec.Customer, rec.Period)] = rec
		if rec.ProductName != "" {
			if _, seen := names[rec.Product]; !seen {
				names[rec.Product] = rec.ProductName
			}
		}
	}

	if len(records) == 0 {
		return nil, nil, errors.New("table: no valid rows")
	}
	return records, names, nil
}

// historyKey builds the exact-match index key.
func historyKey(product, customer string, period models.Period) string {
	return fmt.Sprintf("%s|%s|%s", normalizeCode(product), normalizeCode(customer), period.String())
}

// normalizeCode canonicalizes product and customer codes for matching.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeHeader strips BOM, trims and lowercases header cells.
func normalizeHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, v := range hdr {
		v = strings.TrimPrefix(v, "﻿")
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// findIndex returns the position of the first header matching any candidate.
func findIndex(hdr []string, candidates []string) int {
	for i, v := range hdr {
		for _, c := range candidates {
			if v == c {
				return i
			}
		}
	}
	return -1
}

// parseQuantity parses a quantity cell tolerating Italian number formats,
// e.g. "1.234,56" -> 1234.56 and "1234,5" -> 1234.5.
func parseQuantity(raw string) (float64, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, false
	}
	v = strings.ReplaceAll(v, " ", "")
	if strings.Contains(v, ",") {
		// comma is the decimal separator, dots are thousands separators
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
