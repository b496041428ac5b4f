package tax

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction tells whether a delta acquires (In) or disposes of (Out) an asset.
type Direction string

const (
	In  Direction = "In"
	Out Direction = "Out"
)

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Direction(s) {
	case In, Out:
		*d = Direction(s)
		return nil
	}
	return fmt.Errorf("%w: unknown direction %q", ErrDataIntegrity, s)
}

// Kind classifies the economic nature of a delta. The taxonomy is closed:
// decoding an unknown kind is fatal, because every kind carries bespoke
// valuation rules and silently accepting a new one would misclassify it.
type Kind string

const (
	Swap                           Kind = "Swap"
	SwapGas                        Kind = "SwapGas"
	SwapFailGas                    Kind = "SwapFailGas"
	WalletToWalletGas              Kind = "WalletToWalletGas"
	WrapEth                        Kind = "WrapEth"
	WrapEthGas                     Kind = "WrapEthGas"
	WrapEthFailGas                 Kind = "WrapEthFailGas"
	UnwrapEth                      Kind = "UnwrapEth"
	UnwrapEthGas                   Kind = "UnwrapEthGas"
	UnwrapEthFailGas               Kind = "UnwrapEthFailGas"
	ApproveGas                     Kind = "ApproveGas"
	ApproveFailGas                 Kind = "ApproveFailGas"
	Payment                        Kind = "Payment"
	PaymentGas                     Kind = "PaymentGas"
	Erc20TransferFailGas           Kind = "Erc20TransferFailGas"
	Airdrop                        Kind = "Airdrop"
	AirdropClaimGas                Kind = "AirdropClaimGas"
	TokenMigration                 Kind = "TokenMigration"
	TokenMigrationGas              Kind = "TokenMigrationGas"
	DeployContractGas              Kind = "DeployContractGas"
	DeployContractFailGas          Kind = "DeployContractFailGas"
	EmptyTransaction               Kind = "EmptyTransaction"
	RemoveLiquidity                Kind = "RemoveLiquidity"
	RemoveLiquidityGas             Kind = "RemoveLiquidityGas"
	AllowOnContractGas             Kind = "AllowOnContractGas"
	PayMinerDireclty               Kind = "PayMinerDireclty" // spelling matches the historical export
	PayMinerDirecltyGas            Kind = "PayMinerDirecltyGas"
	CreateMakerVaultGas            Kind = "CreateMakerVaultGas"
	ChangeMakerVaultGas            Kind = "ChangeMakerVaultGas"
	ChangeMakerVaultFailGas        Kind = "ChangeMakerVaultFailGas"
	ChangeMakerVault               Kind = "ChangeMakerVault"
	DydxDepositGas                 Kind = "DydxDepositGas"
	DydxDeposit                    Kind = "DydxDeposit"
	DydxWithdraw                   Kind = "DydxWithdraw"
	OperateSoloMarginGas           Kind = "OperateSoloMarginGas"
	OperateSoloMarginFailGas       Kind = "OperateSoloMarginFailGas"
	BridgeGas                      Kind = "BridgeGas"
	BridgeFee                      Kind = "BridgeFee"
	MalformedTxGas                 Kind = "MalformedTxGas"
	Match                          Kind = "Match"
	TradeFee                       Kind = "TradeFee"
	WithdrawalFee                  Kind = "WithdrawalFee"
	CoinbaseDepositGas             Kind = "CoinbaseDepositGas"
	CoinbaseConversion             Kind = "CoinbaseConversion"
	DepositDiscrepancy             Kind = "DepositDiscrepancy"
	WithdrawalToBank               Kind = "WithdrawalToBank"
	BinanceDepositGas              Kind = "BinanceDepositGas"
	KucoinDepositGas               Kind = "KucoinDepositGas"
	BridgeFeeRefund                Kind = "BridgeFeeRefund"
	DelegateGas                    Kind = "DelegateGas"
	AirdropClaimFailGas            Kind = "AirdropClaimFailGas"
	FtxusDepositGas                Kind = "FtxusDepositGas"
	AutomaticConversion            Kind = "AutomaticConversion"
	Loss                           Kind = "Loss"
	ManageLiquidityGas             Kind = "ManageLiquidityGas"
	ManageLiquidityFailGas         Kind = "ManageLiquidityFailGas"
	ManageLiquidity                Kind = "ManageLiquidity"
	SwapFees                       Kind = "SwapFees"
	SwapRefund                     Kind = "SwapRefund"
	WalletDiscovery                Kind = "WalletDiscovery"
	PhishingAttempt                Kind = "PhishingAttempt"
	Loan                           Kind = "Loan"
	LoanInterestPayment            Kind = "LoanInterestPayment"
	CoinbaseInterest               Kind = "CoinbaseInterest"
	CoinbaseDiscovery              Kind = "CoinbaseDiscovery"
	StakingYield                   Kind = "StakingYield"
	CoinbaseCalculationDiscrepancy Kind = "CoinbaseCalculationDiscrepancy"
	AssetRename                    Kind = "AssetRename"
	Reward                         Kind = "Reward"
	RewardClaimGas                 Kind = "RewardClaimGas"
	RewardClaimFailGas             Kind = "RewardClaimFailGas"
)

var allKinds = map[Kind]struct{}{
	Swap: {}, SwapGas: {}, SwapFailGas: {}, WalletToWalletGas: {},
	WrapEth: {}, WrapEthGas: {}, WrapEthFailGas: {},
	UnwrapEth: {}, UnwrapEthGas: {}, UnwrapEthFailGas: {},
	ApproveGas: {}, ApproveFailGas: {}, Payment: {}, PaymentGas: {},
	Erc20TransferFailGas: {}, Airdrop: {}, AirdropClaimGas: {},
	TokenMigration: {}, TokenMigrationGas: {}, DeployContractGas: {},
	DeployContractFailGas: {}, EmptyTransaction: {}, RemoveLiquidity: {},
	RemoveLiquidityGas: {}, AllowOnContractGas: {}, PayMinerDireclty: {},
	PayMinerDirecltyGas: {}, CreateMakerVaultGas: {}, ChangeMakerVaultGas: {},
	ChangeMakerVaultFailGas: {}, ChangeMakerVault: {}, DydxDepositGas: {},
	DydxDeposit: {}, DydxWithdraw: {}, OperateSoloMarginGas: {},
	OperateSoloMarginFailGas: {}, BridgeGas: {}, BridgeFee: {},
	MalformedTxGas: {}, Match: {}, TradeFee: {}, WithdrawalFee: {},
	CoinbaseDepositGas: {}, CoinbaseConversion: {}, DepositDiscrepancy: {},
	WithdrawalToBank: {}, BinanceDepositGas: {}, KucoinDepositGas: {},
	BridgeFeeRefund: {}, DelegateGas: {}, AirdropClaimFailGas: {},
	FtxusDepositGas: {}, AutomaticConversion: {}, Loss: {},
	ManageLiquidityGas: {}, ManageLiquidityFailGas: {}, ManageLiquidity: {},
	SwapFees: {}, SwapRefund: {}, WalletDiscovery: {}, PhishingAttempt: {},
	Loan: {}, LoanInterestPayment: {}, CoinbaseInterest: {},
	CoinbaseDiscovery: {}, StakingYield: {}, CoinbaseCalculationDiscrepancy: {},
	AssetRename: {}, Reward: {}, RewardClaimGas: {}, RewardClaimFailGas: {},
}

// ParseKind parses a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := allKinds[k]; !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrDataIntegrity, s)
	}
	return k, nil
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Host is the venue a delta happened on: an L1/L2 chain or a custodial
// exchange.
type Host string

const (
	Mainnet        Host = "Mainnet"
	Optimism       Host = "Optimism"
	Base           Host = "Base"
	Optimism10     Host = "Optimism10"
	Optimism20     Host = "Optimism20"
	ArbitrumOne    Host = "ArbitrumOne"
	Coinbase       Host = "Coinbase"
	CoinbasePro    Host = "CoinbasePro"
	CoinbaseDotcom Host = "CoinbaseDotcom"
	Binance        Host = "Binance"
	BinanceUs      Host = "BinanceUs"
	Kucoin         Host = "Kucoin"
	DydxSoloMargin Host = "DydxSoloMargin"
	PolygonPos     Host = "PolygonPos"
	FtxUs          Host = "FtxUs"
	Zksync         Host = "Zksync"
	Blast          Host = "Blast"
	Unichain       Host = "Unichain"
	Bsc            Host = "Bsc"
	Monad          Host = "Monad"
)

var allHosts = map[Host]struct{}{
	Mainnet: {}, Optimism: {}, Base: {}, Optimism10: {}, Optimism20: {},
	ArbitrumOne: {}, Coinbase: {}, CoinbasePro: {}, CoinbaseDotcom: {},
	Binance: {}, BinanceUs: {}, Kucoin: {}, DydxSoloMargin: {},
	PolygonPos: {}, FtxUs: {}, Zksync: {}, Blast: {}, Unichain: {},
	Bsc: {}, Monad: {},
}

func (h *Host) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, ok := allHosts[Host(s)]; !ok {
		return fmt.Errorf("%w: unknown host %q", ErrDataIntegrity, s)
	}
	*h = Host(s)
	return nil
}

// IsCustodialExchange reports whether the host is a custodial venue rather
// than a chain. DydxSoloMargin is margin trading through an on-chain
// protocol and is neither.
func (h Host) IsCustodialExchange() bool {
	switch h {
	case Coinbase, CoinbasePro, CoinbaseDotcom, Binance, BinanceUs, Kucoin, FtxUs:
		return true
	}
	return false
}

// Slug returns the lower-case venue name used in reports. Historical
// Optimism migration hosts collapse to "optimism", the two Coinbase retail
// hosts to "coinbase".
func (h Host) Slug() string {
	switch h {
	case Optimism10, Optimism20:
		return "optimism"
	case CoinbaseDotcom:
		return "coinbase"
	case ArbitrumOne:
		return "arbitrum_one"
	case CoinbasePro:
		return "coinbase_pro"
	case BinanceUs:
		return "binance_us"
	case PolygonPos:
		return "polygon_pos"
	case FtxUs:
		return "ftx_us"
	case DydxSoloMargin:
		return "dydx_solo_margin"
	}
	return strings.ToLower(string(h))
}

// Delta is one recorded acquisition or disposition event for a single asset.
// Deltas are read-only once loaded; the linker and inventory never mutate
// them.
type Delta struct {
	Timestamp  int64     `json:"timestamp"` // ms epoch
	Direction  Direction `json:"direction"`
	Kind       Kind      `json:"ilk"`
	Asset      string    `json:"asset"`
	Qty        Quantity  `json:"qty"`
	Host       Host      `json:"host"`
	Account    string    `json:"account"`
	Identifier string    `json:"identifier"`
	// LinkedTo carries the record references of the legacy flat-index
	// format. It is preserved on round-trip but ignored: group membership
	// is the only linkage the pipeline uses.
	LinkedTo []int `json:"linked_to,omitempty"`
}

// Validate checks the fields a loaded delta must carry.
func (d Delta) Validate() error {
	if _, ok := allKinds[d.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrDataIntegrity, d.Kind)
	}
	if _, ok := allHosts[d.Host]; !ok {
		return fmt.Errorf("%w: unknown host %q", ErrDataIntegrity, d.Host)
	}
	if d.Direction != In && d.Direction != Out {
		return fmt.Errorf("%w: unknown direction %q", ErrDataIntegrity, d.Direction)
	}
	if !d.Qty.IsPositive() {
		return fmt.Errorf("%w: non-positive qty %s for %s %s", ErrDataIntegrity, d.Qty, d.Kind, d.Asset)
	}
	if d.Asset == "" {
		return fmt.Errorf("%w: delta without asset at %d", ErrDataIntegrity, d.Timestamp)
	}
	return nil
}

// Value prices the delta at its own timestamp, in the quote currency. A
// quote-currency delta is worth its quantity by definition.
func (d Delta) Value(quoteCurrency string, prices *Prices) (Money, error) {
	if d.Asset == quoteCurrency {
		return M(d.Qty.value, quoteCurrency), nil
	}
	price, err := prices.PriceAt(TaxTicker(d.Asset), d.Timestamp)
	if err != nil {
		return Money{}, err
	}
	return M(d.Qty.value.Mul(price), quoteCurrency), nil
}

// Deltas is the raw, unordered event set of one accounting period.
type Deltas []Delta

// UsedAssets returns the distinct fungible assets appearing in the set, in
// first-seen order. Liquidity positions are synthetic and never priced
// directly, so they are skipped.
func (ds Deltas) UsedAssets() []string {
	var uas []string
	seen := make(map[string]struct{})
	for _, d := range ds {
		if IsLiquidityPosition(d.Asset) {
			continue
		}
		if _, ok := seen[d.Asset]; !ok {
			seen[d.Asset] = struct{}{}
			uas = append(uas, d.Asset)
		}
	}
	return uas
}

// IsLiquidityPosition reports whether the asset is a Uniswap
// concentrated-liquidity position (V3 or V4). These are tracked as synthetic
// assets with an NFT-like identifier rather than a fungible ticker, and need
// special handling throughout linking, cost basis, and revenue calculation.
//
// Asset format:
// UNI-V{3,4}-LIQUIDITY:{tokenId}_{token0}_{token1}_{feeOrPoolId}_{tickLower}_{tickUpper}
func IsLiquidityPosition(asset string) bool {
	return strings.HasPrefix(asset, "UNI-V3-LIQUIDITY") || strings.HasPrefix(asset, "UNI-V4-LIQUIDITY")
}

// PositionPairName extracts the "token0-token1" pair name from a
// concentrated-liquidity position asset id.
func PositionPairName(asset string) (string, error) {
	if !IsLiquidityPosition(asset) {
		return "", fmt.Errorf("%w: %q is not a liquidity position", ErrDataIntegrity, asset)
	}
	parts := strings.Split(asset, "_")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: malformed position id %q", ErrDataIntegrity, asset)
	}
	return parts[1] + "-" + parts[2], nil
}
