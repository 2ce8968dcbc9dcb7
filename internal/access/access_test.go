package access

import (
	"testing"

	"storylock/internal/store"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "creator unlock", role: RoleCreator, action: ActionUnlock, allow: true},
		{name: "creator roster", role: RoleCreator, action: ActionRoster, allow: true},
		{name: "creator preview", role: RoleCreator, action: ActionPreview, allow: true},
		{name: "recipient view", role: RoleRecipient, action: ActionView, allow: true},
		{name: "recipient unlock", role: RoleRecipient, action: ActionUnlock, allow: true},
		{name: "recipient roster", role: RoleRecipient, action: ActionRoster, allow: false},
		{name: "recipient preview", role: RoleRecipient, action: ActionPreview, allow: false},
		{name: "public view", role: RolePublic, action: ActionView, allow: true},
		{name: "public unlock", role: RolePublic, action: ActionUnlock, allow: false},
		{name: "none view", role: RoleNone, action: ActionView, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	story := store.Story{
		ID:        "sty_1",
		CreatorID: "usr_creator",
		Recipients: []store.Recipient{
			{UserID: "usr_known", Email: "known@example.com"},
			{Email: "Invitee@Example.COM"},
		},
	}
	public := story
	public.IsPublic = true

	cases := []struct {
		name      string
		story     store.Story
		caller    Caller
		creator   bool
		recipient bool
		visible   bool
		role      Role
	}{
		{name: "creator", story: story, caller: Caller{ID: "usr_creator"}, creator: true, visible: true, role: RoleCreator},
		{name: "recipient by id", story: story, caller: Caller{ID: "usr_known"}, recipient: true, visible: true, role: RoleRecipient},
		{name: "recipient by email ignores case", story: story, caller: Caller{ID: "usr_new", Email: "invitee@example.com"}, recipient: true, visible: true, role: RoleRecipient},
		{name: "stranger on private story", story: story, caller: Caller{ID: "usr_x", Email: "x@example.com"}, role: RoleNone},
		{name: "stranger on public story", story: public, caller: Caller{ID: "usr_x"}, visible: true, role: RolePublic},
		{name: "empty caller never matches blank ids", story: store.Story{Recipients: []store.Recipient{{}}}, caller: Caller{}, role: RoleNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.story, tc.caller)
			if got.IsCreator != tc.creator || got.IsRecipient != tc.recipient || got.Visible != tc.visible || got.Role != tc.role {
				t.Fatalf("Resolve() = %+v, want creator=%v recipient=%v visible=%v role=%s",
					got, tc.creator, tc.recipient, tc.visible, tc.role)
			}
		})
	}
}
