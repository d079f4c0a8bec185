package feed

type Board string

const (
	BoardHOSE  Board = "HOSE"
	BoardHNX   Board = "HNX"
	BoardUPCOM Board = "UPCOM"
)

// Instrument is a tracked symbol with its fixed session reference price.
// Price and MarketCap are the seed values shown before the first poll.
type Instrument struct {
	Symbol    string
	Name      string
	Board     Board
	Ref       float64
	Ceil      float64
	Floor     float64
	Price     float64
	MarketCap string
}

// DefaultUniverse is the watchlist of the trading desk, prices in VND x1000.
func DefaultUniverse() []Instrument {
	return []Instrument{
		{"VNM", "Vinamilk", BoardHOSE, 77.3, 82.5, 72.1, 78.5, "159,000 B"},
		{"VIC", "Vingroup", BoardHOSE, 43.1, 46.1, 40.1, 42.3, "160,000 B"},
		{"VHM", "Vinhomes", BoardHOSE, 39.0, 41.7, 36.3, 39.6, "170,000 B"},
		{"VCB", "Vietcombank", BoardHOSE, 86.1, 92.1, 80.1, 88.2, "500,000 B"},
		{"HPG", "Hòa Phát", BoardHOSE, 25.8, 27.6, 24.0, 25.4, "160,000 B"},
		{"ACB", "Ngân hàng Á Châu", BoardHOSE, 24.5, 26.2, 22.8, 24.8, "95,000 B"},
		{"FPT", "FPT Corp", BoardHOSE, 122.4, 130.9, 113.9, 125.6, "180,000 B"},
		{"TCB", "Techcombank", BoardHOSE, 34.0, 36.3, 31.7, 34.8, "120,000 B"},
		{"VPB", "VPBank", BoardHOSE, 19.5, 20.8, 18.2, 19.8, "150,000 B"},
		{"MBB", "MBBank", BoardHOSE, 23.5, 25.1, 21.9, 24.1, "125,000 B"},
		{"BID", "BIDV", BoardHOSE, 48.0, 51.3, 44.7, 48.5, "240,000 B"},
		{"CTG", "VietinBank", BoardHOSE, 33.0, 35.3, 30.7, 33.5, "170,000 B"},
		{"MSN", "Masan Group", BoardHOSE, 68.0, 72.7, 63.3, 67.5, "95,000 B"},
		{"MWG", "Thế Giới Di Động", BoardHOSE, 45.0, 48.1, 41.9, 46.2, "67,000 B"},
		{"GVR", "Tập đoàn Cao su", BoardHOSE, 28.5, 30.4, 26.6, 29.1, "115,000 B"},
		{"STB", "Sacombank", BoardHOSE, 30.0, 32.1, 27.9, 30.8, "56,000 B"},
		{"SSI", "Chứng khoán SSI", BoardHOSE, 35.0, 37.4, 32.6, 35.8, "53,000 B"},
		{"VND", "VNDirect", BoardHOSE, 22.0, 23.5, 20.5, 22.4, "27,000 B"},
		{"DGC", "Hóa chất Đức Giang", BoardHOSE, 110.0, 117.7, 102.3, 112.5, "42,000 B"},
		{"REE", "Cơ Điện Lạnh", BoardHOSE, 62.0, 66.3, 57.7, 62.8, "25,000 B"},
		{"PNJ", "Vàng bạc Phú Nhuận", BoardHOSE, 98.0, 104.8, 91.2, 99.5, "32,000 B"},
		{"POW", "PV Power", BoardHOSE, 11.2, 12.0, 10.4, 11.3, "26,000 B"},
		{"SAB", "Sabeco", BoardHOSE, 58.0, 62.0, 54.0, 57.5, "73,000 B"},
		{"GAS", "PV Gas", BoardHOSE, 78.0, 83.4, 72.6, 78.9, "150,000 B"},
		{"NVL", "Novaland", BoardHOSE, 16.5, 17.6, 15.4, 16.2, "31,000 B"},
		{"SHB", "Ngân hàng SHB", BoardHOSE, 11.5, 12.6, 10.4, 11.8, "40,000 B"},
		{"PVS", "Dịch vụ Dầu khí", BoardHNX, 40.2, 44.2, 36.2, 41.5, "19,000 B"},
		{"PVI", "PVI Holdings", BoardHNX, 48.0, 52.8, 43.2, 48.5, "11,000 B"},
		{"ACV", "Cảng Hàng không", BoardUPCOM, 112.5, 129.3, 95.7, 115.0, "240,000 B"},
		{"BSR", "Lọc hóa Dầu Bình Sơn", BoardUPCOM, 22.8, 26.2, 19.4, 23.4, "70,000 B"},
	}
}
