package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/shopspring/decimal"
)

// CSVSource loads daily bars and VIX closes from CSV files and lists chains
// from them with the pricing model.
//
// Price files are date,open,high,low,close,volume. VIX files are either
// date,value or date,open,high,low,close; the close is used.
type CSVSource struct {
	PricePath string
	VixPath   string
	chains    *ChainBuilder
	log       *logger.Logger
}

// NewCSVSource creates a CSV source for the given underlying
func NewCSVSource(pricePath, vixPath, underlying string) *CSVSource {
	return &CSVSource{
		PricePath: pricePath,
		VixPath:   vixPath,
		chains:    NewChainBuilder(underlying),
		log:       logger.Component("marketdata"),
	}
}

// SetLogger replaces the source logger
func (s *CSVSource) SetLogger(l *logger.Logger) {
	if l != nil {
		s.log = l
	}
}

// FetchHistoricalData implements Source
func (s *CSVSource) FetchHistoricalData(ctx context.Context, start, end time.Time, _ string) (*Dataset, error) {
	prices, err := s.loadPrices()
	if err != nil {
		return nil, err
	}

	var vix []VixPoint
	if s.VixPath != "" {
		vix, err = s.loadVix()
		if err != nil {
			return nil, err
		}
	}

	data := &Dataset{}
	for _, bar := range prices {
		if inRange(bar.Date, start, end) {
			data.Prices = append(data.Prices, bar)
		}
	}
	if len(data.Prices) == 0 {
		return nil, ErrNoData
	}

	data.Vix = alignVix(data.Prices, vix)
	series := s.chains.NewSeries()
	for i, bar := range data.Prices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data.Chains = append(data.Chains, series.Next(bar.Date, bar.Close, data.Vix[i].Value))
	}
	return data, nil
}

func (s *CSVSource) loadPrices() ([]PriceBar, error) {
	records, err := readRecords(s.PricePath)
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("file", s.PricePath)
	bars := make([]PriceBar, 0, len(records))
	for _, record := range records {
		if len(record.fields) < 6 {
			log.Debug("Skipping short price row", "row", record.line, "columns", len(record.fields))
			continue
		}
		bar, err := parsePriceRecord(record.fields)
		if err != nil {
			log.WithError(err).Debug("Skipping malformed price row", "row", record.line)
			continue
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

func (s *CSVSource) loadVix() ([]VixPoint, error) {
	records, err := readRecords(s.VixPath)
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("file", s.VixPath)
	points := make([]VixPoint, 0, len(records))
	for _, record := range records {
		fields := record.fields
		if len(fields) < 2 {
			log.Debug("Skipping short VIX row", "row", record.line, "columns", len(fields))
			continue
		}
		date, err := parseDate(fields[0])
		if err != nil {
			log.WithError(err).Debug("Skipping malformed VIX row", "row", record.line)
			continue
		}
		col := 1
		if len(fields) >= 5 {
			col = 4
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[col]), 64)
		if err != nil {
			log.WithError(err).Debug("Skipping malformed VIX row", "row", record.line)
			continue
		}
		points = append(points, VixPoint{Date: date, Value: value})
	}
	return points, nil
}

// csvRecord is one data row and the file line it starts on
type csvRecord struct {
	line   int
	fields []string
}

// readRecords reads every data row of a CSV file, dropping a header row if present
func readRecords(path string) ([]csvRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records []csvRecord
	for first := true; ; first = false {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		// A first row whose second column is not numeric is a header
		if first && len(record) > 1 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64); err != nil {
				continue
			}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, csvRecord{line: line, fields: record})
	}
	return records, nil
}

// parsePriceRecord parses a single CSV record into a PriceBar
func parsePriceRecord(record []string) (PriceBar, error) {
	date, err := parseDate(record[0])
	if err != nil {
		return PriceBar{}, err
	}

	fields := make([]decimal.Decimal, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := range fields {
		fields[i], err = decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return PriceBar{}, fmt.Errorf("invalid %s: %w", names[i], err)
		}
	}

	return PriceBar{
		Date:   date,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}

// parseDate accepts Unix seconds or milliseconds, RFC3339 and common date layouts
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 10000000000 {
			return dateOnly(time.UnixMilli(ts).UTC()), nil
		}
		return dateOnly(time.Unix(ts, 0).UTC()), nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.DateOnly,
		"01/02/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return dateOnly(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
