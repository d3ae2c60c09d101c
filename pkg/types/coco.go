package types

// CocoDocument is a COCO detection dataset for one split
type CocoDocument struct {
	Info        CocoInfo         `json:"info"`
	Licenses    []CocoLicense    `json:"licenses"`
	Categories  []CocoCategory   `json:"categories"`
	Images      []CocoImage      `json:"images"`
	Annotations []CocoAnnotation `json:"annotations"`
}

type CocoInfo struct {
	Description string `json:"description"`
}

type CocoLicense struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// CocoAnnotation stores its box as top-left x,y plus width and height
type CocoAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area"`
	IsCrowd    int        `json:"iscrowd"`
}

// CategoryNames maps category id to name
func (d *CocoDocument) CategoryNames() map[int]string {
	m := make(map[int]string, len(d.Categories))
	for _, c := range d.Categories {
		m[c.ID] = c.Name
	}
	return m
}
