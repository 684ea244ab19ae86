package core

// Asset is one supported collateral type and its oracle feed binding. The
// registry is fixed at engine construction: assets are never removed, since
// open positions keep referencing them for valuation.
type Asset struct {
	AssetId string `json:"assetId"`
	Symbol  string `json:"symbol"`

	Feed *StaleCheckedFeed `json:"-"`
}

// assetRegistry keeps registration order; aggregate valuation iterates it,
// so the order must be deterministic and stable.
type assetRegistry struct {
	ordered []*Asset
	byId    map[string]*Asset
}

func newAssetRegistry(assets []*Asset) *assetRegistry {
	r := &assetRegistry{
		ordered: make([]*Asset, 0, len(assets)),
		byId:    make(map[string]*Asset, len(assets)),
	}
	for _, a := range assets {
		if _, ok := r.byId[a.AssetId]; ok {
			continue
		}
		r.ordered = append(r.ordered, a)
		r.byId[a.AssetId] = a
	}
	return r
}

func (r *assetRegistry) get(assetId string) (*Asset, bool) {
	a, ok := r.byId[assetId]
	return a, ok
}

func (r *assetRegistry) list() []*Asset {
	out := make([]*Asset, len(r.ordered))
	copy(out, r.ordered)
	return out
}
