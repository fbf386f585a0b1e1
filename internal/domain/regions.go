package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RegionMap is a fixed partition of station names into macro-regions.
// Stations outside the partition are simply not aggregated.
type RegionMap struct {
	siteToRegion map[string]string
}

// NewRegionMap builds a RegionMap from region name → station list. A station
// listed under two regions keeps the first assignment in region-name order.
func NewRegionMap(regions map[string][]string) *RegionMap {
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	m := make(map[string]string)
	for _, name := range names {
		for _, site := range regions[name] {
			if _, ok := m[site]; !ok {
				m[site] = name
			}
		}
	}
	return &RegionMap{siteToRegion: m}
}

// Region returns the region a station belongs to, if any.
func (r *RegionMap) Region(site string) (string, bool) {
	region, ok := r.siteToRegion[site]
	return region, ok
}

// Len reports the number of mapped stations.
func (r *RegionMap) Len() int { return len(r.siteToRegion) }

// LoadRegionMap reads a region partition from a JSON file mapping region
// name to a list of station names.
func LoadRegionMap(path string) (*RegionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region map: %w", err)
	}
	var regions map[string][]string
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("parse region map: %w", err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("region map file %s is empty", path)
	}
	return NewRegionMap(regions), nil
}

// DefaultRegionMap returns the deployment's four-region partition of the
// Taiwan EPA monitoring network (north, central, south, east).
func DefaultRegionMap() *RegionMap {
	return NewRegionMap(map[string][]string{
		"北": {"三重", "中壢", "中山", "冬山", "古亭", "土城", "基隆", "士林",
			"大園", "宜蘭", "平鎮", "新店", "新竹", "新莊", "松山", "板橋",
			"林口", "桃園", "永和", "汐止", "淡水", "湖口", "竹東", "菜寮",
			"萬華", "萬里", "觀音", "陽明", "龍潭"},
		"中": {"三義", "二林", "南投", "大里", "彰化", "忠明", "沙鹿",
			"線西", "苗栗", "西屯", "豐原", "頭份"},
		"南": {"仁武", "前金", "前鎮", "善化", "嘉義", "大寮", "安南",
			"小港", "屏東", "崙背", "左營", "復興", "恆春", "斗六",
			"新港", "新營", "朴子", "林園", "楠梓", "橋頭", "潮州",
			"美濃", "臺南", "臺西", "鳳山"},
		"東": {"臺東", "花蓮"},
	})
}
