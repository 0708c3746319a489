package datanorm

import "time"

// RawRecord is one loosely-typed spreadsheet row. Keys keep whatever casing
// and spacing the source file used; values are strings, numbers or nil.
type RawRecord map[string]any

// Canonical delivery statuses produced by the classifier. Unknown source
// statuses are passed through verbatim and are not listed here.
const (
	StatusDelivered     = "DELIVERED"
	StatusNDR           = "NDR"
	StatusOFD           = "OFD"
	StatusPending       = "PENDING"
	StatusCanceled      = "CANCELED"
	StatusRTODelivered  = "RTO DELIVERED"
	StatusRTOInitiated  = "RTO INITIATED"
	StatusRTOInTransit  = "RTO IN TRANSIT"
	StatusRTONDR        = "RTO NDR"
	StatusInTransit     = "IN TRANSIT"
	StatusOutForDeliver = "OUT FOR DELIVERY"
	StatusPickedUp      = "PICKED UP"
)

// AddressQuality grades the delivery address of a record.
type AddressQuality string

const (
	AddressInvalid AddressQuality = "INVALID"
	AddressShort   AddressQuality = "SHORT"
	AddressGood    AddressQuality = "GOOD"
)

// DefaultCategory is used when a record carries no product category.
const DefaultCategory = "Uncategorized"

// Record is a normalized shipment record. Pointer fields serialize as null
// when the source had no usable value; derived fields are always present.
type Record struct {
	// Status
	OriginalStatus *string `json:"original_status"`
	DeliveryStatus string  `json:"delivery_status"`
	NDRFlag        bool    `json:"ndr_flag"`
	RTOFlag        bool    `json:"rto_flag"`
	CancelledFlag  bool    `json:"cancelled_flag"`

	// Milestone dates, YYYY-MM-DD
	OrderDate        *string `json:"order_date"`
	PickupDate       *string `json:"pickup_date"`
	OFDDate          *string `json:"ofd_date"`
	DeliveryDate     *string `json:"delivery_date"`
	NDRDate          *string `json:"ndr_date"`
	RTODate          *string `json:"rto_date"`
	RTODeliveredDate *string `json:"rto_delivered_date"`
	ApprovalDate     *string `json:"approval_date"`
	AWBAssignedDate  *string `json:"awb_assigned_date"`
	OrderWeek        *string `json:"order_week"`

	// Turn-around times in hours
	OrderToPickupTAT   *float64 `json:"order_to_pickup_tat"`
	PickupToOFDTAT     *float64 `json:"pickup_to_ofd_tat"`
	OFDToDeliveryTAT   *float64 `json:"ofd_to_delivery_tat"`
	TotalTAT           *float64 `json:"total_tat"`
	OrderToApprovalTAT *float64 `json:"order_to_approval_tat"`
	ApprovalToAWBTAT   *float64 `json:"approval_to_awb_tat"`
	AWBToPickupTAT     *float64 `json:"awb_to_pickup_tat"`
	OrderToOFDTAT      *float64 `json:"order_to_ofd_tat"`

	// Money and measures
	OrderValue     *float64 `json:"order_value"`
	OrderPrice     *float64 `json:"order_price"`
	Weight         *float64 `json:"weight"`
	Margin         *float64 `json:"margin"`
	OrderRiskScore *float64 `json:"order_risk_score"`

	// Dimensions
	Category           string         `json:"category"`
	Channel            *string        `json:"channel"`
	PaymentMethod      *string        `json:"payment_method"`
	SKU                *string        `json:"sku"`
	MasterSKU          *string        `json:"master_sku"`
	ChannelSKU         *string        `json:"channel_sku"`
	ProductName        *string        `json:"product_name"`
	Courier            *string        `json:"courier"`
	RTORisk            *string        `json:"rto_risk"`
	NDRReason          *string        `json:"ndr_reason"`
	CancellationReason *string        `json:"cancellation_reason"`
	AddressLine1       *string        `json:"address_line_1"`
	AddressLine2       *string        `json:"address_line_2"`
	City               *string        `json:"city"`
	State              *string        `json:"state"`
	Pincode            *string        `json:"pincode"`
	AddressQuality     AddressQuality `json:"address_quality"`

	// Extra holds every normalized column that has no dedicated field.
	Extra map[string]any `json:"extra,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`
}

// SKUs returns every SKU alias carried by the record, most specific first.
func (r *Record) SKUs() []string {
	var out []string
	for _, s := range []*string{r.MasterSKU, r.SKU, r.ChannelSKU} {
		if s != nil && *s != "" {
			out = append(out, *s)
		}
	}
	return out
}

// PrimarySKU returns the first available SKU alias, or "".
func (r *Record) PrimarySKU() string {
	if skus := r.SKUs(); len(skus) > 0 {
		return skus[0]
	}
	return ""
}

// Str dereferences an optional string, returning "" for nil.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
