package registry

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/pkg/model"
)

// fullOffering populates every exportable column, avoiding values the
// wire format cannot distinguish from absence (zero traffic, empty
// lists with embedded commas).
func fullOffering(key string) *model.Offering {
	return &model.Offering{
		OfferName:             "Storage Box XL",
		Description:           "Dedicated storage server with hot swap bays",
		Key:                   key,
		ProductPageURL:        "https://provider.example/storage-xl",
		Currency:              model.CurrencyUSD,
		MonthlyPrice:          89.99,
		SetupFee:              25,
		Visibility:            model.VisibilityVisible,
		ProductType:           model.ProductDedicated,
		Virtualization:        model.VirtNone,
		BillingInterval:       model.BillingMonthly,
		Stock:                 model.StockLimited,
		ProcessorBrand:        model.Ptr("Intel"),
		ProcessorAmount:       model.Ptr(uint32(2)),
		ProcessorCores:        model.Ptr(uint32(16)),
		ProcessorSpeed:        model.Ptr("2.9 GHz"),
		ProcessorName:         model.Ptr("Xeon Silver 4314"),
		MemoryErrorCorrection: model.ECCRegistered,
		MemoryType:            model.Ptr("DDR4"),
		MemoryAmount:          model.Ptr("128 GB"),
		HDDAmount:             8,
		TotalHDDCapacity:      model.Ptr("64 TB"),
		SSDAmount:             2,
		TotalSSDCapacity:      model.Ptr("1 TB"),
		Unmetered:             []string{"inbound", "internal"},
		UplinkSpeed:           model.Ptr("10 Gbps"),
		Traffic:               model.Ptr(uint32(100)),
		DatacenterCountry:     "FI",
		DatacenterCity:        "Helsinki",
		Coordinates:           &model.LatLng{Lat: 60.17, Lng: 24.94},
		Features:              []string{"IPMI", "Hot swap"},
		OperatingSystems:      []string{"Debian 12", "Rocky 9"},
		ControlPanel:          model.Ptr("none"),
		GPUName:               model.Ptr("NVIDIA L4"),
		PaymentMethods:        []string{"card", "crypto"},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	in := []*model.Offering{fullOffering("sb-xl"), validOffering("vm-1")}

	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, in))

	out, issues, err := ParseCatalogCSV(&buf)
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, out, len(in))

	for i := range in {
		assert.Equal(t, *in[i], *out[i], "row %d must survive the round trip", i+1)
	}
}

func TestCSVRoundTripTwice(t *testing.T) {
	in := []*model.Offering{fullOffering("sb-xl")}

	var first bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&first, in))
	firstText := first.String()
	mid, issues, err := ParseCatalogCSV(&first)
	require.NoError(t, err)
	require.Empty(t, issues)

	var second bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&second, mid))
	assert.Equal(t, firstText, second.String(),
		"a second export of re-imported rows must be byte identical")
}

func TestCSVHeaderIsTheWireContract(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, []string{
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
	}, records[0])
}

func TestCSVOptionalMarkers(t *testing.T) {
	tests := []struct {
		name    string
		traffic string
		want    *uint32
	}{
		{name: "empty means absent", traffic: "", want: nil},
		{name: "zero means absent", traffic: "0", want: nil},
		{name: "n/a means absent", traffic: "N/A", want: nil},
		{name: "dash means absent", traffic: "-", want: nil},
		{name: "garbage means absent", traffic: "lots", want: nil},
		{name: "number is kept", traffic: "250", want: model.Ptr(uint32(250))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := offeringToRow(fullOffering("sb-1"))
			record[26] = tt.traffic
			o, err := parseRow(record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.Traffic)
		})
	}
}

func TestCSVCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		coords string
		want   *model.LatLng
	}{
		{name: "lat and lon", coords: "60.17,24.94", want: &model.LatLng{Lat: 60.17, Lng: 24.94}},
		{name: "spaces tolerated", coords: " 60.17 , 24.94 ", want: &model.LatLng{Lat: 60.17, Lng: 24.94}},
		{name: "empty", coords: "", want: nil},
		{name: "missing longitude", coords: "60.17", want: nil},
		{name: "not numbers", coords: "north,east", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := offeringToRow(fullOffering("sb-1"))
			record[29] = tt.coords
			o, err := parseRow(record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.Coordinates)
		})
	}
}

func TestCSVListColumns(t *testing.T) {
	record := offeringToRow(fullOffering("sb-1"))
	record[31] = "Debian 12,  Ubuntu 24.04 ,Rocky 9"
	o, err := parseRow(record)
	require.NoError(t, err)
	assert.Equal(t, []string{"Debian 12", "Ubuntu 24.04", "Rocky 9"}, o.OperatingSystems)

	record[31] = ""
	o, err = parseRow(record)
	require.NoError(t, err)
	assert.Nil(t, o.OperatingSystems)
}

func TestCSVColumnCount(t *testing.T) {
	_, err := parseRow([]string{"too", "short"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestParseCatalogCSVPartialFailure(t *testing.T) {
	good1 := fullOffering("sb-1")
	bad := fullOffering("sb-2")
	good2 := fullOffering("sb-3")

	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, []*model.Offering{good1, bad, good2}))
	text := strings.Replace(buf.String(), "USD", "DOGE", 2)
	text = strings.Replace(text, "DOGE", "USD", 1)

	offerings, issues, err := ParseCatalogCSV(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, offerings, 2)
	assert.Equal(t, "sb-1", string(offerings[0].Key))
	assert.Equal(t, "sb-3", string(offerings[1].Key))

	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Row)
	assert.Contains(t, issues[0].Message, "DOGE")
}

func TestParseCatalogCSVDuplicateKeys(t *testing.T) {
	first := fullOffering("sb-1")
	first.OfferName = "kept"
	dup := fullOffering("sb-1")
	dup.OfferName = "dropped"
	other := fullOffering("sb-2")

	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, []*model.Offering{first, dup, other}))

	offerings, issues, err := ParseCatalogCSV(&buf)
	require.NoError(t, err)
	require.Len(t, offerings, 2)
	assert.Equal(t, "kept", offerings[0].OfferName)
	assert.Equal(t, "sb-2", string(offerings[1].Key))

	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Row)
	assert.Contains(t, issues[0].Message, "first used in row 1")
}

func TestParseCatalogCSVRaggedRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, []*model.Offering{fullOffering("sb-1")}))
	buf.WriteString("just,three,columns\n")

	offerings, issues, err := ParseCatalogCSV(&buf)
	require.NoError(t, err)
	assert.Len(t, offerings, 1)
	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Row)
}

func TestParseCatalogCSVEmptyInput(t *testing.T) {
	_, _, err := ParseCatalogCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestParseCatalogCSVHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, nil))

	offerings, issues, err := ParseCatalogCSV(&buf)
	require.NoError(t, err)
	assert.Empty(t, offerings)
	assert.Empty(t, issues)
}

func TestCSVImportedRowsPassRegistryValidation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCatalogCSV(&buf, []*model.Offering{fullOffering("sb-1")}))

	offerings, _, err := ParseCatalogCSV(&buf)
	require.NoError(t, err)
	require.Len(t, offerings, 1)

	r := New(DefaultConfig())
	_, err = r.Put(testPubkey(1), offerings[0])
	assert.NoError(t, err)
}
