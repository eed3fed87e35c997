package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"offerdex/pkg/model"
)

// csvHeader is the fixed 35-column catalog schema. Column names and order
// are the exchange format external data sources depend on; they must not
// change.
var csvHeader = []string{
	"Offer Name",
	"Description",
	"Unique Internal identifier",
	"Product page URL",
	"Currency",
	"Monthly price",
	"Setup fee",
	"Visibility",
	"Product Type",
	"Virtualization type",
	"Billing interval",
	"Stock",
	"Processor Brand",
	"Processor Amount",
	"Processor Cores",
	"Processor Speed",
	"Processor Name",
	"Memory Error Correction",
	"Memory Type",
	"Memory Amount",
	"Hard Disk Drive Amount",
	"Total Hard Disk Drive Capacity",
	"Solid State Disk Amount",
	"Total Solid State Disk Capacity",
	"Unmetered",
	"Uplink speed",
	"Traffic",
	"Datacenter Country",
	"Datacenter City",
	"Datacenter Coordinates",
	"Features",
	"Operating Systems",
	"Control Panel",
	"GPU Name",
	"Payment Methods",
}

// RowIssue reports one rejected import row.
type RowIssue struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ParseCatalogCSV reads catalog rows and converts each to an offering.
// One bad row never aborts the batch; it is reported in the issue list
// and parsing continues. A repeated offering key keeps the first
// occurrence and reports the rest. Row numbers are 1-based over data
// rows. The returned error is reserved for an unreadable stream or a
// missing header.
func ParseCatalogCSV(r io.Reader) ([]*model.Offering, []RowIssue, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("%w: catalog is empty, header row missing", model.ErrValidation)
		}
		return nil, nil, fmt.Errorf("reading catalog header: %w", err)
	}

	var (
		offerings []*model.Offering
		issues    []RowIssue
		row       int
	)
	firstRow := make(map[model.OfferingKey]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			issues = append(issues, RowIssue{Row: row, Message: err.Error()})
			continue
		}
		o, err := parseRow(record)
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			issues = append(issues, RowIssue{Row: row, Message: err.Error()})
			continue
		}
		if prev, dup := firstRow[o.Key]; dup {
			issues = append(issues, RowIssue{
				Row:     row,
				Message: fmt.Sprintf("duplicate offering key %q, first used in row %d", o.Key, prev),
			})
			continue
		}
		firstRow[o.Key] = row
		offerings = append(offerings, o)
	}
	return offerings, issues, nil
}

// parseRow converts one 35-column record to an offering. Optional numeric
// fields treat "", "0", "N/A" and "-" as absent; lists split on commas;
// coordinates parse as "lat,lon".
func parseRow(record []string) (*model.Offering, error) {
	if len(record) != len(csvHeader) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", model.ErrValidation, len(csvHeader), len(record))
	}

	field := func(i int) string { return strings.TrimSpace(record[i]) }

	optString := func(i int) *string {
		v := field(i)
		if v == "" {
			return nil
		}
		return &v
	}

	optUint32 := func(i int) *uint32 {
		v := field(i)
		if v == "" || v == "0" || v == "N/A" || v == "-" {
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil
		}
		u := uint32(n)
		return &u
	}

	optCapacity := func(i int) *string {
		v := field(i)
		if v == "" || v == "0" {
			return nil
		}
		return &v
	}

	list := func(i int) []string {
		v := field(i)
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}

	currency, err := model.ParseCurrency(field(4))
	if err != nil {
		return nil, err
	}
	monthlyPrice, err := strconv.ParseFloat(field(5), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: monthly price %q", model.ErrValidation, field(5))
	}
	setupFee, err := strconv.ParseFloat(field(6), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: setup fee %q", model.ErrValidation, field(6))
	}
	visibility, err := model.ParseVisibility(field(7))
	if err != nil {
		return nil, err
	}
	productType, err := model.ParseProductType(field(8))
	if err != nil {
		return nil, err
	}
	virtualization, err := model.ParseVirtualizationType(field(9))
	if err != nil {
		return nil, err
	}
	billing, err := model.ParseBillingInterval(field(10))
	if err != nil {
		return nil, err
	}
	stock, err := model.ParseStockStatus(field(11))
	if err != nil {
		return nil, err
	}

	var ecc model.ErrorCorrection
	if v := field(17); v != "" {
		ecc, err = model.ParseErrorCorrection(v)
		if err != nil {
			return nil, err
		}
	}

	var coords *model.LatLng
	if v := field(29); v != "" {
		parts := strings.SplitN(v, ",", 2)
		if len(parts) == 2 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lng, lngErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if latErr == nil && lngErr == nil {
				coords = &model.LatLng{Lat: lat, Lng: lng}
			}
		}
	}

	var hddAmount, ssdAmount uint32
	if n := optUint32(20); n != nil {
		hddAmount = *n
	}
	if n := optUint32(22); n != nil {
		ssdAmount = *n
	}

	return &model.Offering{
		OfferName:             field(0),
		Description:           field(1),
		Key:                   field(2),
		ProductPageURL:        field(3),
		Currency:              currency,
		MonthlyPrice:          monthlyPrice,
		SetupFee:              setupFee,
		Visibility:            visibility,
		ProductType:           productType,
		Virtualization:        virtualization,
		BillingInterval:       billing,
		Stock:                 stock,
		ProcessorBrand:        optString(12),
		ProcessorAmount:       optUint32(13),
		ProcessorCores:        optUint32(14),
		ProcessorSpeed:        optString(15),
		ProcessorName:         optString(16),
		MemoryErrorCorrection: ecc,
		MemoryType:            optString(18),
		MemoryAmount:          optString(19),
		HDDAmount:             hddAmount,
		TotalHDDCapacity:      optCapacity(21),
		SSDAmount:             ssdAmount,
		TotalSSDCapacity:      optCapacity(23),
		Unmetered:             list(24),
		UplinkSpeed:           optString(25),
		Traffic:               optUint32(26),
		DatacenterCountry:     field(27),
		DatacenterCity:        field(28),
		Coordinates:           coords,
		Features:              list(30),
		OperatingSystems:      list(31),
		ControlPanel:          optString(32),
		GPUName:               optString(33),
		PaymentMethods:        list(34),
	}, nil
}

// offeringToRow is the structural inverse of parseRow.
func offeringToRow(o *model.Offering) []string {
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	optNum := func(p *uint32) string {
		if p == nil {
			return ""
		}
		return strconv.FormatUint(uint64(*p), 10)
	}

	coords := ""
	if o.Coordinates != nil {
		coords = num(o.Coordinates.Lat) + "," + num(o.Coordinates.Lng)
	}

	return []string{
		o.OfferName,
		o.Description,
		o.Key,
		o.ProductPageURL,
		o.Currency.String(),
		num(o.MonthlyPrice),
		num(o.SetupFee),
		o.Visibility.String(),
		o.ProductType.String(),
		o.Virtualization.String(),
		o.BillingInterval.String(),
		o.Stock.String(),
		str(o.ProcessorBrand),
		optNum(o.ProcessorAmount),
		optNum(o.ProcessorCores),
		str(o.ProcessorSpeed),
		str(o.ProcessorName),
		o.MemoryErrorCorrection.String(),
		str(o.MemoryType),
		str(o.MemoryAmount),
		strconv.FormatUint(uint64(o.HDDAmount), 10),
		str(o.TotalHDDCapacity),
		strconv.FormatUint(uint64(o.SSDAmount), 10),
		str(o.TotalSSDCapacity),
		strings.Join(o.Unmetered, ", "),
		str(o.UplinkSpeed),
		optNum(o.Traffic),
		o.DatacenterCountry,
		o.DatacenterCity,
		coords,
		strings.Join(o.Features, ", "),
		strings.Join(o.OperatingSystems, ", "),
		str(o.ControlPanel),
		str(o.GPUName),
		strings.Join(o.PaymentMethods, ", "),
	}
}

// WriteCatalogCSV writes the header row followed by one row per offering,
// in the order given.
func WriteCatalogCSV(w io.Writer, offerings []*model.Offering) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("writing catalog header: %w", err)
	}
	for _, o := range offerings {
		if err := writer.Write(offeringToRow(o)); err != nil {
			return fmt.Errorf("writing offering %q: %w", o.Key, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
