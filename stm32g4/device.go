// Package stm32g4 describes the STM32G431 peripherals used by the waveform
// engine: base addresses, register maps, bit fields, DMAMUX request lines
// and interrupt numbers. Values follow RM0440.
package stm32g4

import "sort"

// Peripheral base addresses.
const (
	TIM2Base    = 0x4000_0000
	TIM3Base    = 0x4000_0400
	USART2Base  = 0x4000_4400
	USART3Base  = 0x4000_4800
	PWRBase     = 0x4000_7000
	SYSCFGBase  = 0x4001_0000
	EXTIBase    = 0x4001_0400
	DMA1Base    = 0x4002_0000
	DMAMUXBase  = 0x4002_0800
	RCCBase     = 0x4002_1000
	FLASHBase   = 0x4002_2000
	GPIOABase   = 0x4800_0000
	GPIOBBase   = 0x4800_0400
	GPIOCBase   = 0x4800_0800
	ADC1Base    = 0x5000_0000
	ADC12Common = 0x5000_0300
	SRAMBase    = 0x2000_0000
	BlockSize   = 0x400
	ADCBlockLen = 0x100
)

// Interrupt numbers (NVIC position).
const (
	IRQ_DMA1_CH1  = 11
	IRQ_DMA1_CH2  = 12
	IRQ_DMA1_CH3  = 13
	IRQ_DMA1_CH4  = 14
	IRQ_DMA1_CH5  = 15
	IRQ_DMA1_CH6  = 16
	IRQ_ADC1_2    = 18
	IRQ_TIM2      = 28
	IRQ_TIM3      = 29
	IRQ_USART2    = 38
	IRQ_USART3    = 39
	IRQ_EXTI15_10 = 40
)

// DMA1ChannelIRQ returns the interrupt line of DMA1 channel n (1-based).
func DMA1ChannelIRQ(n int) uint8 {
	return uint8(IRQ_DMA1_CH1 + n - 1)
}

// RequestID is a DMAMUX request line.
type RequestID uint8

const (
	ReqNone     RequestID = 0
	ReqADC1     RequestID = 5
	ReqTIM2_CH1 RequestID = 56
	ReqTIM2_CH2 RequestID = 57
	ReqTIM2_CH3 RequestID = 58
	ReqTIM2_CH4 RequestID = 59
	ReqTIM2_UP  RequestID = 60
	ReqTIM3_CH1 RequestID = 61
	ReqTIM3_CH2 RequestID = 62
	ReqTIM3_CH3 RequestID = 63
	ReqTIM3_CH4 RequestID = 64
	ReqTIM3_UP  RequestID = 65
)

var requestNames = map[RequestID]string{
	ReqADC1:     "ADC1",
	ReqTIM2_CH1: "TIM2_CH1",
	ReqTIM2_CH2: "TIM2_CH2",
	ReqTIM2_CH3: "TIM2_CH3",
	ReqTIM2_CH4: "TIM2_CH4",
	ReqTIM2_UP:  "TIM2_UP",
	ReqTIM3_CH1: "TIM3_CH1",
	ReqTIM3_CH2: "TIM3_CH2",
	ReqTIM3_CH3: "TIM3_CH3",
	ReqTIM3_CH4: "TIM3_CH4",
	ReqTIM3_UP:  "TIM3_UP",
}

// Known reports whether id is a request line this package describes.
func (id RequestID) Known() bool {
	_, ok := requestNames[id]
	return ok
}

func (id RequestID) String() string {
	if name, ok := requestNames[id]; ok {
		return name
	}
	return "REQ_UNKNOWN"
}

// RequestIDs lists the described request lines in ascending order.
func RequestIDs() []RequestID {
	ids := make([]RequestID, 0, len(requestNames))
	for id := range requestNames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RequestByName looks up a request line by its reference-manual name.
func RequestByName(name string) (RequestID, bool) {
	for id, n := range requestNames {
		if n == name {
			return id, true
		}
	}
	return ReqNone, false
}

// TimerLayout describes one general purpose timer instance.
type TimerLayout struct {
	Name        string
	Base        uint32
	CounterBits uint8
	Channels    uint8
	IRQ         uint8
	UpdateReq   RequestID
	CompareReq  [4]RequestID
}

var (
	TIM2 = TimerLayout{
		Name:        "TIM2",
		Base:        TIM2Base,
		CounterBits: 32,
		Channels:    4,
		IRQ:         IRQ_TIM2,
		UpdateReq:   ReqTIM2_UP,
		CompareReq:  [4]RequestID{ReqTIM2_CH1, ReqTIM2_CH2, ReqTIM2_CH3, ReqTIM2_CH4},
	}
	TIM3 = TimerLayout{
		Name:        "TIM3",
		Base:        TIM3Base,
		CounterBits: 16,
		Channels:    4,
		IRQ:         IRQ_TIM3,
		UpdateReq:   ReqTIM3_UP,
		CompareReq:  [4]RequestID{ReqTIM3_CH1, ReqTIM3_CH2, ReqTIM3_CH3, ReqTIM3_CH4},
	}
)

// TimerByName returns the layout of a supported timer.
func TimerByName(name string) (TimerLayout, bool) {
	switch name {
	case "TIM2":
		return TIM2, true
	case "TIM3":
		return TIM3, true
	}
	return TimerLayout{}, false
}

// DMA1Channels is the channel count of DMA1 on category 2 devices.
const DMA1Channels = 6

// Block is one peripheral register block.
type Block struct {
	Name string
	Base uint32
	Size uint32
}

// Blocks lists every register block the firmware touches. Peripheral sets
// and the simulator are built from it, so window names match everywhere.
var Blocks = []Block{
	{"TIM2", TIM2Base, BlockSize},
	{"TIM3", TIM3Base, BlockSize},
	{"USART2", USART2Base, BlockSize},
	{"USART3", USART3Base, BlockSize},
	{"PWR", PWRBase, BlockSize},
	{"SYSCFG", SYSCFGBase, BlockSize},
	{"EXTI", EXTIBase, BlockSize},
	{"DMA1", DMA1Base, BlockSize},
	{"DMAMUX1", DMAMUXBase, BlockSize},
	{"RCC", RCCBase, BlockSize},
	{"FLASH", FLASHBase, BlockSize},
	{"GPIOA", GPIOABase, BlockSize},
	{"GPIOB", GPIOBBase, BlockSize},
	{"GPIOC", GPIOCBase, BlockSize},
	{"ADC1", ADC1Base, ADCBlockLen},
	{"ADC12_COMMON", ADC12Common, ADCBlockLen},
}

// BlockByName finds a block in Blocks.
func BlockByName(name string) (Block, bool) {
	for _, b := range Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}
