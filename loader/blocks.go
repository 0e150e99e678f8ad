package loader

import (
	"strings"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/geo"
)

// blockNeighborhoods assigns each census block of src to the neighborhood
// containing it. Blocks outside every neighborhood are left out.
func blockNeighborhoods(path string, src config.BlockSource, index *geo.Index) (map[string]string, error) {
	required := []string{src.GeoIDField}
	if src.TownField != "" {
		required = append(required, src.TownField)
	}
	features, err := geo.ReadShapefile(path, required...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, f := range features {
		if src.TownField != "" && !strings.EqualFold(f.Attributes[src.TownField], src.Town) {
			continue
		}
		if name, ok := index.LocateGeometry(f.Geometry); ok {
			out[normalizeBlock(f.Attributes[src.GeoIDField])] = name
		}
	}
	return out, nil
}
