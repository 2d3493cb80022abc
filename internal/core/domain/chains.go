package domain

type ChainID uint64
type ChainName string

const (
	ChainIDEthereum ChainID = 1
	ChainIDSepolia  ChainID = 11155111
	ChainIDPolygon  ChainID = 137
	ChainIDAmoy     ChainID = 80002

	ChainNameEthereum ChainName = "mainnet"
	ChainNameSepolia  ChainName = "sepolia"
	ChainNamePolygon  ChainName = "matic"
	ChainNameAmoy     ChainName = "amoy"
)

// ChainNameToID maps a network name to its chain ID.
var ChainNameToID = map[ChainName]ChainID{
	ChainNameEthereum: ChainIDEthereum,
	ChainNameSepolia:  ChainIDSepolia,
	ChainNamePolygon:  ChainIDPolygon,
	ChainNameAmoy:     ChainIDAmoy,
}
