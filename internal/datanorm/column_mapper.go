package datanorm

// CanonicalField names a normalized shipment field.
type CanonicalField string

const (
	FieldOrderDate          CanonicalField = "order_date"
	FieldPickupDate         CanonicalField = "pickup_date"
	FieldOFDDate            CanonicalField = "ofd_date"
	FieldDeliveryDate       CanonicalField = "delivery_date"
	FieldNDRDate            CanonicalField = "ndr_date"
	FieldRTODate            CanonicalField = "rto_date"
	FieldRTODeliveredDate   CanonicalField = "rto_delivered_date"
	FieldApprovalDate       CanonicalField = "approval_date"
	FieldAWBAssignedDate    CanonicalField = "awb_assigned_date"
	FieldOrderValue         CanonicalField = "order_value"
	FieldOrderPrice         CanonicalField = "order_price"
	FieldWeight             CanonicalField = "weight"
	FieldMargin             CanonicalField = "margin"
	FieldOrderRiskScore     CanonicalField = "order_risk_score"
	FieldCategory           CanonicalField = "category"
	FieldChannel            CanonicalField = "channel"
	FieldPaymentMethod      CanonicalField = "payment_method"
	FieldSKU                CanonicalField = "sku"
	FieldMasterSKU          CanonicalField = "master_sku"
	FieldChannelSKU         CanonicalField = "channel_sku"
	FieldProductName        CanonicalField = "product_name"
	FieldCourier            CanonicalField = "courier"
	FieldRTORisk            CanonicalField = "rto_risk"
	FieldNDRReason          CanonicalField = "ndr_reason"
	FieldCancellationReason CanonicalField = "cancellation_reason"
	FieldAddressLine1       CanonicalField = "address_line_1"
	FieldAddressLine2       CanonicalField = "address_line_2"
	FieldCity               CanonicalField = "city"
	FieldState              CanonicalField = "state"
	FieldPincode            CanonicalField = "pincode"
)

// fieldAliases lists, per canonical field, the normalized source headers
// that may carry it. Order is precedence: the first alias holding a
// parseable value wins. Headers with spaces normalize with doubled
// underscores ("Order Total" -> "order__total"), so both spellings appear.
var fieldAliases = map[CanonicalField][]string{
	FieldOrderDate: {
		"shiprocket__created__at", "shiprocket_created_at",
		"channel__created__at", "channel_created_at",
		"order__date", "order_date", "order_placed_date", "created_at",
	},
	FieldPickupDate: {
		"order__picked__up__date", "order_picked_up_date",
		"pickedup__timestamp", "pickedup_timestamp",
		"pickup_date", "pickup_datetime",
		"pickup__first__attempt__date", "pickup_first_attempt_date",
	},
	FieldOFDDate: {
		"first__out__for__delivery__date", "first_out_for_delivery_date",
		"latest__o_f_d__date", "latest_o_f_d__date", "latest_ofd_date",
		"ofd_date", "ofd_datetime", "out_for_delivery_date",
	},
	FieldDeliveryDate: {
		"order__delivered__date", "order_delivered_date",
		"delivery_date", "delivered_date", "delivered_datetime",
	},
	FieldNDRDate: {
		"latest__n_d_r__date", "latest_n_d_r__date", "latest_ndr_date",
		"n_d_r_1__attempt__date", "ndr_1_attempt_date",
		"ndr_2_attempt_date", "ndr_3_attempt_date",
		"ndr_date", "ndr_datetime",
	},
	FieldRTODate: {
		"r_t_o__initiated__date", "rto_initiated_date",
		"r_t_o__delivered__date", "rto_delivered_date",
		"rto_date", "rto_datetime",
	},
	FieldRTODeliveredDate: {
		"r_t_o__delivered__date", "rto_delivered_date",
	},
	FieldApprovalDate: {
		"approval__date", "approval_date",
		"order__approved__date", "order_approved_date",
	},
	FieldAWBAssignedDate: {
		"a_w_b__assigned__date", "awb__assigned__date", "awb_assigned_date",
	},

	FieldOrderValue: {
		"order__total", "order_total", "order_value", "price", "amount",
		"gmv_amount", "total_order_value",
	},
	FieldOrderPrice:     {"product__price", "product_price"},
	FieldWeight:         {"weight__k_g", "weight_k_g", "weight_kg", "weight"},
	FieldMargin:         {"margin", "profit", "profit_margin", "margin_amount"},
	FieldOrderRiskScore: {"order__risk", "order_risk", "risk_score", "address__score", "address_score"},

	FieldCategory:      {"product__category", "product_category", "category"},
	FieldChannel:       {"channel", "channel__"},
	FieldPaymentMethod: {"payment__method", "payment_method", "paymentmethod"},
	FieldSKU:           {"sku"},
	FieldMasterSKU:     {"master__s_k_u", "master_s_k_u", "master_sku"},
	FieldChannelSKU:    {"channel__s_k_u", "channel_s_k_u", "channel_sku"},
	FieldProductName:   {"product__name", "product_name"},
	FieldCourier: {
		"courier__company", "courier_company", "master__courier", "master_courier",
		"courier", "courier_name",
	},
	FieldRTORisk: {"r_t_o__risk", "rto__risk", "rto_risk", "courier__risk", "courier_risk", "risk"},
	FieldNDRReason: {
		"latest__n_d_r__reason", "latest_n_d_r__reason", "latest_ndr_reason",
		"n_d_r__reason", "ndr_reason",
	},
	FieldCancellationReason: {"cancellation__reason", "cancellation_reason", "cancellation__bucket", "cancellation_bucket"},
	FieldAddressLine1:       {"address__line_1", "address_line_1", "address_line1", "address"},
	FieldAddressLine2:       {"address__line_2", "address_line_2", "address_line2"},
	FieldCity:               {"address__city", "address_city", "city"},
	FieldState:              {"address__state", "address_state", "state"},
	FieldPincode:            {"address__pincode", "address_pincode", "pincode"},
}

// statusAliases are the normalized keys that may hold source status text,
// checked after the raw "Status" header.
var statusAliases = []string{"status", "original_status", "delivery_status", "current_status", "current__status"}

// Boolean marker columns.
var (
	ndrMarkers       = []string{"ndr", "n_d_r"}
	rtoMarkers       = []string{"rto", "r_t_o"}
	cancelledMarkers = []string{"cancelled", "canceled"}
)

// Aliases returns the ordered source headers for a canonical field.
func Aliases(f CanonicalField) []string {
	return fieldAliases[f]
}

// consumed reports every normalized key claimed by an alias table, so the
// preprocessor can route the rest into Record.Extra.
func consumed() map[string]bool {
	out := make(map[string]bool)
	for _, aliases := range fieldAliases {
		for _, a := range aliases {
			out[a] = true
		}
	}
	for _, a := range statusAliases {
		out[a] = true
	}
	return out
}

var consumedKeys = consumed()
