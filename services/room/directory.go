package room

import "context"

// Directory is the read side of the room handed to query resolvers: the
// cached snapshot plus the room's web surface.
type Directory struct {
	Service *Service
	Web     *WebClient
}

// NewDirectory wires svc and web together and purges the alias cache on
// every refresh.
func NewDirectory(svc *Service, web *WebClient) *Directory {
	if web != nil {
		svc.OnRefresh(web.PurgeAliases)
	}
	return &Directory{Service: svc, Web: web}
}

// Snapshot returns the current room state.
func (d *Directory) Snapshot() *State {
	return d.Service.Snapshot()
}

// URL returns the room's web url, or "" without a web client.
func (d *Directory) URL() string {
	if d.Web == nil {
		return ""
	}
	return d.Web.URL()
}

// Alias resolves an alias through the room's web surface.
func (d *Directory) Alias(ctx context.Context, alias string) (*AliasInfo, error) {
	if d.Web == nil {
		return nil, nil
	}
	return d.Web.Alias(ctx, alias)
}

// CreateInvite asks the room for an invite link.
func (d *Directory) CreateInvite(ctx context.Context) (string, error) {
	if d.Web == nil {
		return "", nil
	}
	return d.Web.CreateInvite(ctx)
}
