package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"offerdex/internal/identity"
	"offerdex/internal/ledger"
	"offerdex/internal/registry"
	"offerdex/internal/server"
	"offerdex/pkg/model"
)

// searchParams maps search flags onto the API's query parameters.
var searchParams = map[string]string{
	"q":              "q",
	"provider":       "provider",
	"key":            "key",
	"country":        "country",
	"city":           "city",
	"product-type":   "product_type",
	"virtualization": "virtualization",
	"stock":          "stock",
	"currency":       "currency",
	"price-min":      "price_min",
	"price-max":      "price_max",
	"gpu":            "gpu",
	"min-cores":      "min_cores",
	"min-memory":     "min_memory_gb",
	"min-storage":    "min_storage_gb",
	"offset":         "offset",
	"limit":          "limit",
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	asJSON := fs.Bool("json", false, "print the raw JSON response")
	fs.String("q", "", "full-text keywords")
	fs.String("provider", "", "provider pubkey (hex)")
	fs.String("key", "", "offering key")
	fs.String("country", "", "datacenter country code")
	fs.String("city", "", "datacenter city")
	fs.String("product-type", "", "product type (e.g. vps, dedicated_server)")
	fs.String("virtualization", "", "virtualization type")
	fs.String("stock", "", "stock status")
	fs.String("currency", "", "price currency (e.g. EUR)")
	fs.Float64("price-min", 0, "minimum monthly price (requires -currency)")
	fs.Float64("price-max", 0, "maximum monthly price (requires -currency)")
	fs.Bool("gpu", false, "require (or with =false, exclude) a GPU")
	fs.Uint("min-cores", 0, "minimum processor cores")
	fs.Uint("min-memory", 0, "minimum memory in GB")
	fs.Uint("min-storage", 0, "minimum total storage in GB")
	fs.Int("offset", 0, "pagination offset")
	fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only flags the operator actually set become query parameters, so
	// -gpu=false and an absent -gpu stay distinguishable.
	params := url.Values{}
	fs.Visit(func(f *flag.Flag) {
		if name, ok := searchParams[f.Name]; ok {
			params.Set(name, f.Value.String())
		}
	})

	client := newAPIClient(*addr, defaultToken())
	res, err := client.Search(context.Background(), params)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(res)
	}
	printListings(res.Listings)
	fmt.Printf("\n%d of %d matching offerings\n", len(res.Listings), res.Total)
	if res.HasMore() {
		next := 0
		if v := params.Get("offset"); v != "" {
			fmt.Sscanf(v, "%d", &next)
		}
		fmt.Printf("More available, continue with -offset %d\n", next+len(res.Listings))
	}
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: offerdex-search get [flags] <provider-pubkey> <offering-key>")
	}

	client := newAPIClient(*addr, defaultToken())
	res, err := client.GetOffering(context.Background(), fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	asJSON := fs.Bool("json", false, "print the raw JSON response")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: offerdex-search list [flags] <provider-pubkey>")
	}

	client := newAPIClient(*addr, defaultToken())
	res, err := client.ListProvider(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(res)
	}
	listings := make([]model.Listing, 0, len(res.Offerings))
	for _, off := range res.Offerings {
		listings = append(listings, model.Listing{Provider: res.Provider, Offering: off})
	}
	printListings(listings)
	fmt.Printf("\n%d offerings from %s\n", res.Count, res.Provider.Short())
	return nil
}

func runPublish(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	keyFile := fs.String("key", "", "provider signing key file (hex seed or PEM)")
	catalogFile := fs.String("catalog", "", "catalog CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyFile == "" || *catalogFile == "" {
		return fmt.Errorf("publish requires -key and -catalog")
	}

	priv, err := identity.LoadPrivateKey(*keyFile)
	if err != nil {
		return err
	}
	provider, err := identity.PublicKeyOf(priv)
	if err != nil {
		return err
	}
	payload, err := os.ReadFile(*catalogFile)
	if err != nil {
		return fmt.Errorf("reading catalog: %w", err)
	}

	rec := ledger.NewRecord(provider, payload)
	if err := rec.Sign(priv); err != nil {
		return fmt.Errorf("signing record: %w", err)
	}

	client := newAPIClient(*addr, defaultToken())
	res, err := client.PublishCatalog(context.Background(), rec)
	if err != nil {
		return err
	}

	fmt.Printf("Published as %s: %d imported, %d new, %d updated, %d withdrawn\n",
		provider.Short(), res.Imported, res.Published, res.Updated, res.Withdrawn)
	printRowIssues(res.Issues)
	return nil
}

func runWithdraw(args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := newAPIClient(*addr, defaultToken())
	switch fs.NArg() {
	case 1:
		res, err := client.WithdrawProvider(context.Background(), fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Printf("Withdrew %d offerings from %s\n", res.Withdrawn, res.Provider.Short())
		return nil
	case 2:
		res, err := client.WithdrawOffering(context.Background(), fs.Arg(0), fs.Arg(1))
		if err != nil {
			return err
		}
		if res.Withdrawn {
			fmt.Printf("Withdrew %s from %s\n", res.Key, res.Provider.Short())
		} else {
			fmt.Printf("No offering %s under %s\n", res.Key, res.Provider.Short())
		}
		return nil
	default:
		return fmt.Errorf("usage: offerdex-search withdraw [flags] <provider-pubkey> [offering-key]")
	}
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	provider := fs.String("provider", "", "provider pubkey (hex) to import under")
	file := fs.String("file", "", "catalog CSV file (defaults to stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *provider == "" {
		return fmt.Errorf("import requires -provider")
	}

	in := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	client := newAPIClient(*addr, defaultToken())
	res, err := client.ImportCSV(context.Background(), *provider, in)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d offerings: %d new, %d updated, %d withdrawn\n",
		res.Imported, res.Published, res.Updated, res.Withdrawn)
	printRowIssues(res.Issues)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	provider := fs.String("provider", "", "limit the export to one provider")
	out := fs.String("o", "", "output file (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	client := newAPIClient(*addr, defaultToken())
	return client.ExportCSV(context.Background(), *provider, w)
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "node address")
	asJSON := fs.Bool("json", false, "print the raw JSON response")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := newAPIClient(*addr, defaultToken())
	res, err := client.Stats(context.Background())
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(res)
	}
	fmt.Printf("Offerings:  %d\n", res.Catalog.Offerings)
	fmt.Printf("Providers:  %d\n", res.Catalog.Providers)
	fmt.Printf("Keywords:   %d\n", res.Catalog.Keywords)
	fmt.Printf("Events:     %d published, %d dropped\n", res.Catalog.EventsPublished, res.Catalog.EventsDropped)
	if res.Ledger != nil {
		fmt.Printf("Feed:       %d applied, %d appended, %d skipped, %d stale\n",
			res.Ledger.Applied, res.Ledger.Appended, res.Ledger.Skipped, res.Ledger.Stale)
		fmt.Printf("Caught up:  %v\n", res.Ledger.CaughtUp)
	}
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("OFFERDEX_AUTH_SECRET"), "shared HMAC secret of the node")
	operator := fs.String("operator", "ops", "subject to mint the token for")
	issuer := fs.String("issuer", "", "issuer claim (defaults to the node's)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("token requires -secret or $OFFERDEX_AUTH_SECRET")
	}

	tokens, err := server.NewTokenService(server.AuthConfig{
		Enabled:  true,
		Secret:   *secret,
		Issuer:   *issuer,
		TokenTTL: model.Duration(*ttl),
	})
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(*operator)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("o", "provider.key", "file to write the private seed to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pub, priv, err := identity.GenerateKeyPair()
	if err != nil {
		return err
	}
	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(*out, []byte(seed+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}

	pem, err := identity.PublicKeyPEM(pub)
	if err != nil {
		return err
	}
	fmt.Printf("Private key written to %s\n", *out)
	fmt.Printf("Provider pubkey: %s\n\n", pub.Hex())
	fmt.Print(pem)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printListings(listings []model.Listing) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tKEY\tNAME\tTYPE\tPRICE\tLOCATION\tSTOCK")
	for _, l := range listings {
		o := l.Offering
		location := o.DatacenterCountry
		if o.DatacenterCity != "" {
			location = o.DatacenterCity + ", " + o.DatacenterCountry
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f %s\t%s\t%s\n",
			l.Provider.Short(), o.Key, o.OfferName, o.ProductType,
			o.MonthlyPrice, o.Currency, location, o.Stock)
	}
	w.Flush()
}

func printRowIssues(issues []registry.RowIssue) {
	for _, issue := range issues {
		fmt.Printf("  row %d: %s\n", issue.Row, issue.Message)
	}
}
