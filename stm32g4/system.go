package stm32g4

import "wavedma/regs"

// RCC
var (
	RCC_CR       = regs.Reg{Name: "CR", Offset: 0x00}
	RCC_CFGR     = regs.Reg{Name: "CFGR", Offset: 0x08}
	RCC_PLLCFGR  = regs.Reg{Name: "PLLCFGR", Offset: 0x0C}
	RCC_AHB1ENR  = regs.Reg{Name: "AHB1ENR", Offset: 0x48}
	RCC_AHB2ENR  = regs.Reg{Name: "AHB2ENR", Offset: 0x4C}
	RCC_APB1ENR1 = regs.Reg{Name: "APB1ENR1", Offset: 0x58}
	RCC_APB2ENR  = regs.Reg{Name: "APB2ENR", Offset: 0x60}
	RCC_CCIPR    = regs.Reg{Name: "CCIPR", Offset: 0x88}

	RCC_CR_HSION  = regs.Bit("HSION", RCC_CR, 8)
	RCC_CR_HSIRDY = regs.Bit("HSIRDY", RCC_CR, 10)
	RCC_CR_PLLON  = regs.Bit("PLLON", RCC_CR, 24)
	RCC_CR_PLLRDY = regs.Bit("PLLRDY", RCC_CR, 25)

	RCC_CFGR_SW   = regs.Field{Name: "SW", Reg: RCC_CFGR, Shift: 0, Width: 2}
	RCC_CFGR_SWS  = regs.Field{Name: "SWS", Reg: RCC_CFGR, Shift: 2, Width: 2}
	RCC_CFGR_HPRE = regs.Field{Name: "HPRE", Reg: RCC_CFGR, Shift: 4, Width: 4}

	RCC_PLLCFGR_PLLSRC = regs.Field{Name: "PLLSRC", Reg: RCC_PLLCFGR, Shift: 0, Width: 2}
	RCC_PLLCFGR_PLLM   = regs.Field{Name: "PLLM", Reg: RCC_PLLCFGR, Shift: 4, Width: 4}
	RCC_PLLCFGR_PLLN   = regs.Field{Name: "PLLN", Reg: RCC_PLLCFGR, Shift: 8, Width: 7}
	RCC_PLLCFGR_PLLREN = regs.Bit("PLLREN", RCC_PLLCFGR, 24)
	RCC_PLLCFGR_PLLR   = regs.Field{Name: "PLLR", Reg: RCC_PLLCFGR, Shift: 25, Width: 2}

	RCC_CCIPR_ADC12SEL = regs.Field{Name: "ADC12SEL", Reg: RCC_CCIPR, Shift: 28, Width: 2}

	RCC_AHB1ENR_DMA1EN   = regs.Bit("DMA1EN", RCC_AHB1ENR, 0)
	RCC_AHB1ENR_DMAMUXEN = regs.Bit("DMAMUX1EN", RCC_AHB1ENR, 2)
	RCC_AHB2ENR_GPIOAEN  = regs.Bit("GPIOAEN", RCC_AHB2ENR, 0)
	RCC_AHB2ENR_GPIOBEN  = regs.Bit("GPIOBEN", RCC_AHB2ENR, 1)
	RCC_AHB2ENR_GPIOCEN  = regs.Bit("GPIOCEN", RCC_AHB2ENR, 2)
	RCC_AHB2ENR_ADC12EN  = regs.Bit("ADC12EN", RCC_AHB2ENR, 13)
	RCC_APB1ENR1_TIM2EN  = regs.Bit("TIM2EN", RCC_APB1ENR1, 0)
	RCC_APB1ENR1_TIM3EN  = regs.Bit("TIM3EN", RCC_APB1ENR1, 1)
	RCC_APB1ENR1_USART2  = regs.Bit("USART2EN", RCC_APB1ENR1, 17)
	RCC_APB1ENR1_USART3  = regs.Bit("USART3EN", RCC_APB1ENR1, 18)
	RCC_APB1ENR1_PWREN   = regs.Bit("PWREN", RCC_APB1ENR1, 28)
	RCC_APB2ENR_SYSCFGEN = regs.Bit("SYSCFGEN", RCC_APB2ENR, 0)
)

// FLASH and PWR, needed to run the core at 170 MHz.
var (
	FLASH_ACR         = regs.Reg{Name: "ACR", Offset: 0x00}
	FLASH_ACR_LATENCY = regs.Field{Name: "LATENCY", Reg: FLASH_ACR, Shift: 0, Width: 4}

	PWR_CR5        = regs.Reg{Name: "CR5", Offset: 0x80}
	PWR_CR5_R1MODE = regs.Bit("R1MODE", PWR_CR5, 8)
)

// GPIO
var (
	GPIO_MODER   = regs.Reg{Name: "MODER", Offset: 0x00}
	GPIO_OTYPER  = regs.Reg{Name: "OTYPER", Offset: 0x04}
	GPIO_OSPEEDR = regs.Reg{Name: "OSPEEDR", Offset: 0x08}
	GPIO_PUPDR   = regs.Reg{Name: "PUPDR", Offset: 0x0C}
	GPIO_IDR     = regs.Reg{Name: "IDR", Offset: 0x10}
	GPIO_ODR     = regs.Reg{Name: "ODR", Offset: 0x14}
	GPIO_BSRR    = regs.Reg{Name: "BSRR", Offset: 0x18}
	GPIO_AFRL    = regs.Reg{Name: "AFRL", Offset: 0x20}
	GPIO_AFRH    = regs.Reg{Name: "AFRH", Offset: 0x24}
)

// GPIO pin modes (MODER encoding).
const (
	PinInput     = 0
	PinOutput    = 1
	PinAlternate = 2
	PinAnalog    = 3
)

// GPIO_MODE returns the two mode bits of pin.
func GPIO_MODE(pin int) regs.Field {
	return regs.Field{Name: "MODE", Reg: GPIO_MODER, Shift: uint8(2 * pin), Width: 2}
}

// GPIO_AF returns the four alternate function bits of pin.
func GPIO_AF(pin int) regs.Field {
	if pin < 8 {
		return regs.Field{Name: "AFSEL", Reg: GPIO_AFRL, Shift: uint8(4 * pin), Width: 4}
	}
	return regs.Field{Name: "AFSEL", Reg: GPIO_AFRH, Shift: uint8(4 * (pin - 8)), Width: 4}
}

func GPIO_PUPD(pin int) regs.Field {
	return regs.Field{Name: "PUPD", Reg: GPIO_PUPDR, Shift: uint8(2 * pin), Width: 2}
}

// USART
var (
	USART_CR1 = regs.Reg{Name: "CR1", Offset: 0x00}
	USART_BRR = regs.Reg{Name: "BRR", Offset: 0x0C}
	USART_ISR = regs.Reg{Name: "ISR", Offset: 0x1C}
	USART_RDR = regs.Reg{Name: "RDR", Offset: 0x24}
	USART_TDR = regs.Reg{Name: "TDR", Offset: 0x28}

	USART_CR1_UE     = regs.Bit("UE", USART_CR1, 0)
	USART_CR1_RE     = regs.Bit("RE", USART_CR1, 2)
	USART_CR1_TE     = regs.Bit("TE", USART_CR1, 3)
	USART_CR1_RXNEIE = regs.Bit("RXNEIE", USART_CR1, 5)
	USART_ISR_RXNE   = regs.Bit("RXNE", USART_ISR, 5)
	USART_ISR_TC     = regs.Bit("TC", USART_ISR, 6)
	USART_ISR_TXE    = regs.Bit("TXE", USART_ISR, 7)
)

// EXTI and SYSCFG, for the direction button.
var (
	EXTI_IMR1  = regs.Reg{Name: "IMR1", Offset: 0x00}
	EXTI_RTSR1 = regs.Reg{Name: "RTSR1", Offset: 0x08}
	EXTI_FTSR1 = regs.Reg{Name: "FTSR1", Offset: 0x0C}
	EXTI_PR1   = regs.Reg{Name: "PR1", Offset: 0x14}

	SYSCFG_EXTICR3 = regs.Reg{Name: "EXTICR3", Offset: 0x10}
)

// ADC (per-converter block)
var (
	ADC_ISR  = regs.Reg{Name: "ISR", Offset: 0x00}
	ADC_IER  = regs.Reg{Name: "IER", Offset: 0x04}
	ADC_CR   = regs.Reg{Name: "CR", Offset: 0x08}
	ADC_CFGR = regs.Reg{Name: "CFGR", Offset: 0x0C}
	ADC_SQR1 = regs.Reg{Name: "SQR1", Offset: 0x30}
	ADC_DR   = regs.Reg{Name: "DR", Offset: 0x40}

	ADC_ISR_ADRDY   = regs.Bit("ADRDY", ADC_ISR, 0)
	ADC_ISR_EOC     = regs.Bit("EOC", ADC_ISR, 2)
	ADC_ISR_OVR     = regs.Bit("OVR", ADC_ISR, 4)
	ADC_CR_ADEN     = regs.Bit("ADEN", ADC_CR, 0)
	ADC_CR_ADSTART  = regs.Bit("ADSTART", ADC_CR, 2)
	ADC_CR_ADVREGEN = regs.Bit("ADVREGEN", ADC_CR, 28)
	ADC_CR_DEEPPWD  = regs.Bit("DEEPPWD", ADC_CR, 29)
	ADC_CR_ADCALDIF = regs.Bit("ADCALDIF", ADC_CR, 30)
	ADC_CR_ADCAL    = regs.Bit("ADCAL", ADC_CR, 31)
	ADC_CFGR_DMAEN  = regs.Bit("DMAEN", ADC_CFGR, 0)
	ADC_CFGR_DMACFG = regs.Bit("DMACFG", ADC_CFGR, 1)
	ADC_CFGR_CONT   = regs.Bit("CONT", ADC_CFGR, 13)
	ADC_SQR1_L      = regs.Field{Name: "L", Reg: ADC_SQR1, Shift: 0, Width: 4}
	ADC_SQR1_SQ1    = regs.Field{Name: "SQ1", Reg: ADC_SQR1, Shift: 6, Width: 5}
	ADC_DR_RDATA    = regs.Field{Name: "RDATA", Reg: ADC_DR, Shift: 0, Width: 16}
)

// ADC12 common block, shared by ADC1 and ADC2.
var (
	ADC12_CCR        = regs.Reg{Name: "CCR", Offset: 0x08}
	ADC12_CCR_CKMODE = regs.Field{Name: "CKMODE", Reg: ADC12_CCR, Shift: 16, Width: 2}
)

// ADC clocking. ADC12SEL picks the asynchronous kernel clock; a non-zero
// CKMODE runs the converter from HCLK instead.
const (
	ADC12SelNone   = 0
	ADC12SelPLLP   = 1
	ADC12SelSysclk = 2

	CKModeAsync    = 0
	CKModeHCLKDiv1 = 1
	CKModeHCLKDiv2 = 2
	CKModeHCLKDiv4 = 3
)

// ADCRegulatorStartupUS is the ADC voltage regulator start-up time
// (tADCVREG_STUP).
const ADCRegulatorStartupUS = 20
