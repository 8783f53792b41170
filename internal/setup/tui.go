package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/walletboard/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers holds everything the wizard asks for, as typed.
type Answers struct {
	ListenAddr      string
	Currencies      string
	Rates           map[string]string
	TopSize         string
	CollectInterval string
	Simulate        bool
	Wallets         string
	EventsPerSecond string
}

func defaultAnswers() Answers {
	return Answers{
		ListenAddr:      config.DefaultListenAddr,
		Currencies:      "EUR,USD",
		Rates:           map[string]string{},
		TopSize:         strconv.Itoa(config.DefaultTopSize),
		CollectInterval: config.DefaultCollectInterval.String(),
		Simulate:        true,
		Wallets:         strconv.Itoa(config.DefaultSimWallets),
		EventsPerSecond: strconv.FormatFloat(config.DefaultSimRate, 'f', -1, 64),
	}
}

func header(step string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("WALLETBOARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to filename.
func RunTUI(filename string) error {
	a := defaultAnswers()
	var confirm bool

	// step 1: server
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("WALLETBOARD CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set up the management dashboard.\n"))
	fmt.Println(stepStyle.Render("STEP 1: SERVER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Description("host:port, the dashboard is served at /management").
				Value(&a.ListenAddr).
				Validate(validateAddr),
			huh.NewInput().
				Title("Collect Interval").
				Description("How often deposit totals are pushed (e.g. 1s)").
				Value(&a.CollectInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: currencies
	header("STEP 2: CURRENCIES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Currencies").
				Description("Comma separated, one deposit chart each (e.g. EUR,USD)").
				Value(&a.Currencies).
				Validate(validateCurrencies),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: rates
	header("STEP 3: RATES TO EUR")
	currencies := splitCurrencies(a.Currencies)
	rateFields := make([]huh.Field, 0, len(currencies))
	rateValues := make([]string, len(currencies))
	for i, cur := range currencies {
		rateValues[i] = config.DefaultRates[cur]
		if rateValues[i] == "" {
			rateValues[i] = "1"
		}
		rateFields = append(rateFields, huh.NewInput().
			Title(fmt.Sprintf("1 %s in EUR", cur)).
			Value(&rateValues[i]).
			Validate(validateRate))
	}
	err = huh.NewForm(huh.NewGroup(rateFields...)).Run()
	if err != nil {
		return err
	}
	for i, cur := range currencies {
		a.Rates[cur] = rateValues[i]
	}

	// step 4: top wallets
	header("STEP 4: TOP WALLETS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Top Wallets").
				Description("Number of wallets in the ranked chart").
				Value(&a.TopSize).
				Validate(validatePositiveInt),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 5: simulation
	header("STEP 5: SIMULATION")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Generate simulated wallet traffic?").
				Value(&a.Simulate),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.Simulate {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Wallets").
					Value(&a.Wallets).
					Validate(validatePositiveInt),
				huh.NewInput().
					Title("Events Per Second").
					Value(&a.EventsPerSecond).
					Validate(validateRate),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// confirmation
	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Address: %s\nCurrencies: %s\nTop: %s\nSimulation: %t\n",
		a.ListenAddr, strings.Join(currencies, ", "), a.TopSize, a.Simulate,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := Write(filename, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting dashboard...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// Build converts wizard answers into a config file body.
func Build(a Answers) (config.ConfigTmp, error) {
	topSize, err := strconv.Atoi(strings.TrimSpace(a.TopSize))
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "top size")
	}
	interval, err := time.ParseDuration(strings.TrimSpace(a.CollectInterval))
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "collect interval")
	}

	tmp := config.ConfigTmp{
		ListenAddr:      strings.TrimSpace(a.ListenAddr),
		Currencies:      splitCurrencies(a.Currencies),
		TopSize:         topSize,
		CollectInterval: interval,
		Rates:           make(map[string]string, len(a.Rates)),
		Simulate:        config.SimulateConfigTmp{Enabled: a.Simulate},
	}
	for cur, rate := range a.Rates {
		tmp.Rates[strings.ToUpper(strings.TrimSpace(cur))] = strings.TrimSpace(rate)
	}
	if a.Simulate {
		wallets, err := strconv.Atoi(strings.TrimSpace(a.Wallets))
		if err != nil {
			return config.ConfigTmp{}, errors.Wrap(err, "wallets")
		}
		tmp.Simulate.Wallets = wallets
		tmp.Simulate.EventsPerSecondStr = strings.TrimSpace(a.EventsPerSecond)
	}

	// fail here rather than on the next start
	if _, err := tmp.Build(); err != nil {
		return config.ConfigTmp{}, err
	}
	return tmp, nil
}

// Write saves wizard answers as YAML.
func Write(filename string, a Answers) error {
	tmp, err := Build(a)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func validateAddr(s string) error {
	if !strings.Contains(s, ":") {
		return fmt.Errorf("must be host:port (e.g. :8080)")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration (e.g. 1s)")
	}
	return nil
}

func validateCurrencies(s string) error {
	if len(splitCurrencies(s)) == 0 {
		return fmt.Errorf("at least one currency is required")
	}
	return nil
}

func validateRate(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("must be a whole number above 0")
	}
	return nil
}

func splitCurrencies(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		cur := strings.ToUpper(strings.TrimSpace(part))
		if cur == "" || seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
	}
	return out
}
