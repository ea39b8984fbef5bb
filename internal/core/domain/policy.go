package domain

// Operation names a mutating lifecycle operation subject to authorization.
type Operation string

const (
	OpCreateProduct           Operation = "create_product"
	OpTransfer                Operation = "transfer"
	OpUpdateLocationAndStatus Operation = "update_location_and_status"
	OpReceiveAtWarehouse      Operation = "receive_at_warehouse"
	OpDeliverToRetailer       Operation = "deliver_to_retailer"
	OpRecallProduct           Operation = "recall_product"
	OpAdminForceUpdate        Operation = "admin_force_update"
	OpGrantRole               Operation = "grant_role"
)

// rule decides a single operation. product is nil for operations that do not
// target an existing product.
type rule func(actor string, g Grants, product *Product) bool

func anyRole(roles ...Role) rule {
	return func(_ string, g Grants, _ *Product) bool {
		for _, r := range roles {
			if g.Holds(r) {
				return true
			}
		}
		return false
	}
}

func isOwner() rule {
	return func(actor string, _ Grants, p *Product) bool {
		return p != nil && actor != "" && p.Owner == actor
	}
}

func deny() rule {
	return func(string, Grants, *Product) bool { return false }
}

func or(rules ...rule) rule {
	return func(actor string, g Grants, p *Product) bool {
		for _, r := range rules {
			if r(actor, g, p) {
				return true
			}
		}
		return false
	}
}

// orAdmin unions Administrator into r.
func orAdmin(r rule) rule {
	return or(anyRole(RoleAdministrator), r)
}

var policy = map[Operation]rule{
	OpCreateProduct:           orAdmin(anyRole(RoleManufacturer)),
	OpTransfer:                orAdmin(isOwner()),
	OpUpdateLocationAndStatus: orAdmin(or(anyRole(RoleTransporter, RoleWarehouse, RoleRetailer, RoleManufacturer), isOwner())),
	OpReceiveAtWarehouse:      orAdmin(anyRole(RoleWarehouse)),
	OpDeliverToRetailer:       orAdmin(anyRole(RoleRetailer)),
	OpRecallProduct:           orAdmin(anyRole(RoleManufacturer)),
	OpAdminForceUpdate:        orAdmin(deny()),
	OpGrantRole:               orAdmin(deny()),
}

// Allow reports whether actor, holding grants g, may perform op on product.
// Unknown operations are denied.
func Allow(op Operation, actor string, g Grants, product *Product) bool {
	r, ok := policy[op]
	if !ok {
		return false
	}
	return r(actor, g, product)
}
