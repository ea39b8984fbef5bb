package domain

import (
	"errors"
	"testing"
)

func TestAllow_Table(t *testing.T) {
	product := &Product{ID: 1, Owner: "owner"}

	cases := []struct {
		name  string
		op    Operation
		actor string
		g     Grants
		want  bool
	}{
		{"create by manufacturer", OpCreateProduct, "m", NewGrants(RoleManufacturer), true},
		{"create by admin", OpCreateProduct, "a", NewGrants(RoleAdministrator), true},
		{"create by transporter", OpCreateProduct, "t", NewGrants(RoleTransporter), false},
		{"create by nobody", OpCreateProduct, "x", NewGrants(), false},

		{"transfer by owner without roles", OpTransfer, "owner", NewGrants(), true},
		{"transfer by admin", OpTransfer, "a", NewGrants(RoleAdministrator), true},
		{"transfer by manufacturer non-owner", OpTransfer, "m", NewGrants(RoleManufacturer), false},

		{"update by transporter", OpUpdateLocationAndStatus, "t", NewGrants(RoleTransporter), true},
		{"update by warehouse", OpUpdateLocationAndStatus, "w", NewGrants(RoleWarehouse), true},
		{"update by retailer", OpUpdateLocationAndStatus, "r", NewGrants(RoleRetailer), true},
		{"update by manufacturer", OpUpdateLocationAndStatus, "m", NewGrants(RoleManufacturer), true},
		{"update by owner", OpUpdateLocationAndStatus, "owner", NewGrants(), true},
		{"update by admin", OpUpdateLocationAndStatus, "a", NewGrants(RoleAdministrator), true},
		{"update by stranger", OpUpdateLocationAndStatus, "x", NewGrants(), false},

		{"receive by warehouse", OpReceiveAtWarehouse, "w", NewGrants(RoleWarehouse), true},
		{"receive by owner", OpReceiveAtWarehouse, "owner", NewGrants(), false},
		{"receive by retailer", OpReceiveAtWarehouse, "r", NewGrants(RoleRetailer), false},

		{"deliver by retailer", OpDeliverToRetailer, "r", NewGrants(RoleRetailer), true},
		{"deliver by warehouse", OpDeliverToRetailer, "w", NewGrants(RoleWarehouse), false},
		{"deliver by admin", OpDeliverToRetailer, "a", NewGrants(RoleAdministrator), true},

		{"recall by manufacturer", OpRecallProduct, "m", NewGrants(RoleManufacturer), true},
		{"recall by admin", OpRecallProduct, "a", NewGrants(RoleAdministrator), true},
		{"recall by owner", OpRecallProduct, "owner", NewGrants(RoleRetailer), false},

		{"force by admin", OpAdminForceUpdate, "a", NewGrants(RoleAdministrator), true},
		{"force by owner manufacturer", OpAdminForceUpdate, "owner", NewGrants(RoleManufacturer), false},

		{"grant by admin", OpGrantRole, "a", NewGrants(RoleAdministrator), true},
		{"grant by manufacturer", OpGrantRole, "m", NewGrants(RoleManufacturer), false},

		{"unknown operation", Operation("drop_table"), "a", NewGrants(RoleAdministrator), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allow(tc.op, tc.actor, tc.g, product); got != tc.want {
				t.Errorf("Allow(%s, %s) = %v, want %v", tc.op, tc.actor, got, tc.want)
			}
		})
	}
}

func TestAllow_EmptyActorIsNeverOwner(t *testing.T) {
	if Allow(OpTransfer, "", NewGrants(), &Product{ID: 1}) {
		t.Error("empty actor must not match an empty owner")
	}
}

func TestGrants_Label_Priority(t *testing.T) {
	cases := []struct {
		g    Grants
		want string
	}{
		{NewGrants(RoleAdministrator, RoleRetailer, RoleManufacturer), "Manufacturer"},
		{NewGrants(RoleWarehouse, RoleTransporter), "Transporter"},
		{NewGrants(RoleRetailer, RoleWarehouse), "Warehouse"},
		{NewGrants(RoleAdministrator, RoleRetailer), "Retailer"},
		{NewGrants(RoleAdministrator), "Administrator"},
		{NewGrants(), UnknownRoleLabel},
	}
	for _, tc := range cases {
		if got := tc.g.Label(); got != tc.want {
			t.Errorf("Label(%v) = %q, want %q", tc.g, got, tc.want)
		}
	}
}

func TestGrants_AdministratorSatisfiesEveryRole(t *testing.T) {
	g := NewGrants(RoleAdministrator)
	for r := range roleLabels {
		if !g.Satisfies(r) {
			t.Errorf("administrator should satisfy %s", r)
		}
	}
	if g.Holds(RoleTransporter) {
		t.Error("administrator must not hold an explicit transporter grant")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("unknown"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown sentinel must be rejected, got %v", err)
	}
	if _, err := ParseStatus("lost"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	st, err := ParseStatus(" In_Transit ")
	if err != nil || st != StatusInTransit {
		t.Errorf("ParseStatus = %q, %v", st, err)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Warehouse")
	if err != nil || r != RoleWarehouse {
		t.Fatalf("ParseRole = %q, %v", r, err)
	}
	if _, err := ParseRole("auditor"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNotification_DedupeKey(t *testing.T) {
	item := HistoryItem{Index: 3}
	a := HistoryAdded(7, item)
	b := HistoryAdded(7, item)
	if a.ID == b.ID {
		t.Error("envelope ids must differ")
	}
	if a.DedupeKey() != b.DedupeKey() || a.DedupeKey() != "7:3:history_added" {
		t.Errorf("unexpected dedupe key %q", a.DedupeKey())
	}
}
