package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DealerProfile holds the letterhead, defaults and fixed document text of
// the dealership. It is loaded from dealer.yml and reloaded on change.
type DealerProfile struct {
	Name           string          `mapstructure:"name"`
	Address        string          `mapstructure:"address"`
	Contact        string          `mapstructure:"contact"`
	FooterContact  string          `mapstructure:"footer_contact"`
	AuthorizedLine string          `mapstructure:"authorized_line"`
	LogoPath       string          `mapstructure:"logo_path"`
	BrandLogoPath  string          `mapstructure:"brand_logo_path"`
	FinanceCompany string          `mapstructure:"finance_company"`
	FinanceAddress string          `mapstructure:"finance_address"`
	Models         []string        `mapstructure:"models"`
	PaymentMethods []string        `mapstructure:"payment_methods"`
	Vehicle        VehicleProfile  `mapstructure:"vehicle"`
	Proforma       ProformaProfile `mapstructure:"proforma"`
}

type VehicleProfile struct {
	Make             string   `mapstructure:"make"`
	EngineCapacity   string   `mapstructure:"engine_capacity"`
	ManufacturedYear string   `mapstructure:"manufactured_year"`
	Country          string   `mapstructure:"country"`
	Manufacturer     []string `mapstructure:"manufacturer"`
}

type ProformaProfile struct {
	Recipient     string   `mapstructure:"recipient"`
	Specification []string `mapstructure:"specification"`
	Remarks       string   `mapstructure:"remarks"`
	Validity      string   `mapstructure:"validity"`
	PaymentTerms  string   `mapstructure:"payment_terms"`
	Delivery      string   `mapstructure:"delivery"`
	Terms         []string `mapstructure:"terms"`
}

func DefaultDealerProfile() DealerProfile {
	return DealerProfile{
		Name:           "Gunawardhana Enterprises, Beliatta Road, Tangalle",
		Address:        "Beliatta Road, Tangalle",
		Contact:        "077 8318061 / 077 8525428",
		FooterContact:  "Contact: 0778525428 / 0768525428 | Email: gunawardhanaenttangalle@gmail.com",
		AuthorizedLine: "Authorized Dealer",
		LogoPath:       "assets/dealer_logo.png",
		BrandLogoPath:  "assets/piaggio_logo.png",
		FinanceCompany: "Vallibel Finance PLC",
		FinanceAddress: "No. 54, Beliatta Road, Tangalle",
		Models: []string{
			"APE AUTO DX PASSENGER (Diesel)",
			"APE AUTO DX PICKUP (Diesel)",
		},
		PaymentMethods: []string{"Cash", "Bank Transfer", "Cheque", "Card", "Other"},
		Vehicle: VehicleProfile{
			Make:             "PIAGGIO",
			EngineCapacity:   "435.6 cc",
			ManufacturedYear: "2025",
			Country:          "India",
			Manufacturer:     []string{"MANUFACTURER: INDIA", "PIAGGIO VEHICLES PVT LTD", "PUNE, MAHARASHTRA"},
		},
		Proforma: ProformaProfile{
			Recipient: "THE MANAGER",
			Specification: []string{
				"BRAND NEW DIESEL THREE WHEELER",
				"12V Self-start, four stroke, air cooled diesel engine",
				"435CC 8h.p.",
				"Warranty : 18 months or 25,000kms whichever comes first",
				"Services : 3 labor-free services will be provided",
			},
			Remarks: "Please note that the above price offered is based on the prevailing rates of exchange, " +
				"import duties, other Government levies and any variations to the above will be adjusted in the final invoice.",
			Validity:     "VALIDITY - 07 DAYS",
			PaymentTerms: "PAYMENT TERMS: All payments should be made in favor of the finance company per instructions.",
			Delivery:     "DELIVERY - Within 14 to 30 DAYS",
			Terms: []string{
				"Prices & Specifications subject to change without prior notice.",
				"Goods being quoted are subject to availability at time of confirmed order.",
				"Model of the vehicle must be mentioned clearly on your purchase order.",
				"Seller is not responsible for delays due to government regulations or force majeure.",
			},
		},
	}
}

type DealerProfileHolder struct {
	current atomic.Value // holds DealerProfile
}

// NewDealerProfileHolder reads dealer.yml (or the file named by DEALER_PROFILE)
// and watches it for changes. A missing file leaves the defaults in place.
func NewDealerProfileHolder(cfg Config, log *zap.Logger) (*DealerProfileHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.dealer")

	v := viper.New()
	if cfg.DealerProfile != "" {
		v.SetConfigFile(cfg.DealerProfile)
	} else {
		v.SetConfigName("dealer")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/invoicedesk")
		if cfg.DataDir != "" {
			v.AddConfigPath(cfg.DataDir)
		}
		v.AddConfigPath(".")
	}

	holder := &DealerProfileHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("dealer profile not found, using defaults")
		holder.current.Store(DefaultDealerProfile())
		return holder, nil
	}

	profile, err := decodeDealerProfile(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(profile)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeDealerProfile(v)
		if err != nil {
			log.Warn("dealer profile reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("dealer profile reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticDealerProfileHolder wraps a fixed profile.
func NewStaticDealerProfileHolder(p DealerProfile) *DealerProfileHolder {
	holder := &DealerProfileHolder{}
	holder.current.Store(p)
	return holder
}

func (h *DealerProfileHolder) Get() DealerProfile {
	if h == nil {
		return DefaultDealerProfile()
	}
	return h.current.Load().(DealerProfile)
}

func decodeDealerProfile(v *viper.Viper) (DealerProfile, error) {
	var profile DealerProfile
	if err := v.UnmarshalKey("dealer", &profile); err != nil {
		return DealerProfile{}, err
	}
	profile = withDefaults(profile, DefaultDealerProfile())
	if err := validateDealerProfile(profile); err != nil {
		return DealerProfile{}, err
	}
	return profile, nil
}

// withDefaults fills every field left empty in the file from def. The
// dealer name is required and never defaulted.
func withDefaults(p, def DealerProfile) DealerProfile {
	str := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	list := func(v *[]string, d []string) {
		if len(*v) == 0 {
			*v = append([]string(nil), d...)
		}
	}

	str(&p.Address, def.Address)
	str(&p.Contact, def.Contact)
	str(&p.FooterContact, def.FooterContact)
	str(&p.AuthorizedLine, def.AuthorizedLine)
	str(&p.LogoPath, def.LogoPath)
	str(&p.BrandLogoPath, def.BrandLogoPath)
	str(&p.FinanceCompany, def.FinanceCompany)
	str(&p.FinanceAddress, def.FinanceAddress)
	list(&p.Models, def.Models)
	list(&p.PaymentMethods, def.PaymentMethods)

	str(&p.Vehicle.Make, def.Vehicle.Make)
	str(&p.Vehicle.EngineCapacity, def.Vehicle.EngineCapacity)
	str(&p.Vehicle.ManufacturedYear, def.Vehicle.ManufacturedYear)
	str(&p.Vehicle.Country, def.Vehicle.Country)
	list(&p.Vehicle.Manufacturer, def.Vehicle.Manufacturer)

	str(&p.Proforma.Recipient, def.Proforma.Recipient)
	list(&p.Proforma.Specification, def.Proforma.Specification)
	str(&p.Proforma.Remarks, def.Proforma.Remarks)
	str(&p.Proforma.Validity, def.Proforma.Validity)
	str(&p.Proforma.PaymentTerms, def.Proforma.PaymentTerms)
	str(&p.Proforma.Delivery, def.Proforma.Delivery)
	list(&p.Proforma.Terms, def.Proforma.Terms)
	return p
}

func validateDealerProfile(p DealerProfile) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("dealer.name cannot be empty")
	}
	if len(p.PaymentMethods) == 0 {
		return errors.New("dealer.payment_methods cannot be empty")
	}
	return nil
}
