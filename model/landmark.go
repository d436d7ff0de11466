package model

// 连接拓扑名称
const (
	TopologyTesselation  = "tesselation"
	TopologyFaceOval     = "face_oval"
	TopologyLips         = "lips"
	TopologyLeftEye      = "left_eye"
	TopologyLeftEyebrow  = "left_eyebrow"
	TopologyRightEye     = "right_eye"
	TopologyRightEyebrow = "right_eyebrow"
)

// Landmark 人脸关键点，坐标为原图像素坐标
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Connection 两个关键点下标之间的连线
type Connection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// LandmarkSet 单张人脸的关键点与连接拓扑
type LandmarkSet struct {
	Points     []Landmark              `json:"points"`
	Topologies map[string][]Connection `json:"topologies"`
}

// Valid 判断连线两端是否都落在关键点范围内
func (s *LandmarkSet) Valid(c Connection) bool {
	return c.From >= 0 && c.To >= 0 && c.From < len(s.Points) && c.To < len(s.Points)
}
